package wire

import "fmt"

// ValidationError reports an out-of-range value, a type mismatch, an
// invalid enum/bitfield member, a message-list element of the wrong
// abbrev, or a null non-message field discovered at assignment or pack
// time.
type ValidationError struct {
	Message string // message abbrev this field belongs to
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Message, e.Field, e.Reason)
}

func validationErrorf(msgAbbrev, field, format string, args ...interface{}) error {
	return &ValidationError{Message: msgAbbrev, Field: field, Reason: fmt.Sprintf(format, args...)}
}
