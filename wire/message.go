// Package wire implements the IMC wire codec: typed primitive
// (de)serialization, frame assembly/validation, and the single runtime
// message representation both lean on.
//
// The runtime representation is a uniform catalog-validated value map
// rather than one generated struct per message type; cmd/imcgen emits
// typed wrappers over it for callers that want compile-time field names.
// Both paths share the same Message/Catalog pair, so neither can drift
// out of sync with the other.
package wire

import (
	"fmt"

	"lsts.pt/imc/catalog"
)

// Message is a decoded or user-constructed IMC message instance: an
// ordered field-value map tied to its catalog descriptor, plus whatever
// header/footer it was decoded with or last packed with.
type Message struct {
	Desc   *catalog.MessageDescriptor
	values map[string]interface{}

	Header *Header
	Footer *uint16
}

// NewMessage constructs an instance of desc with every field initially
// null; initial values may be supplied through the fields map (nil or
// empty means all-null).
func NewMessage(desc *catalog.MessageDescriptor, fields map[string]interface{}) (*Message, error) {
	m := &Message{Desc: desc, values: map[string]interface{}{}}
	for name, v := range fields {
		if err := m.Set(name, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Abbrev returns the message type's abbrev, for convenience logging.
func (m *Message) Abbrev() string {
	if m.Desc == nil {
		return ""
	}
	return m.Desc.Abbrev
}

// Get returns the raw stored value for name (field name or abbrev) and
// whether it has been set.
func (m *Message) Get(name string) (interface{}, bool) {
	fd := m.Desc.FieldByName(name)
	if fd == nil {
		return nil, false
	}
	v, ok := m.values[fd.Name]
	return v, ok
}

// Set validates value against the field's descriptor (type, range, enum
// membership, message-list element type) and stores it. Anything that
// survives Set packs without rechecking, so validation lives here and at
// the null check in encode, nowhere else.
func (m *Message) Set(name string, value interface{}) error {
	fd := m.Desc.FieldByName(name)
	if fd == nil {
		return validationErrorf(m.Abbrev(), name, "no such field")
	}
	if value == nil {
		if fd.Kind == catalog.KindMessage {
			m.values[fd.Name] = nil
			return nil
		}
		return validationErrorf(m.Abbrev(), fd.Name, "non-message field cannot be null")
	}

	switch fd.Kind {
	case catalog.KindMessage:
		sub, ok := value.(*Message)
		if !ok {
			return validationErrorf(m.Abbrev(), fd.Name, "expected *wire.Message, got %T", value)
		}
		if fd.MessageType != "" && sub != nil && sub.Abbrev() != fd.MessageType {
			return validationErrorf(m.Abbrev(), fd.Name, "expected embedded message type %s, got %s", fd.MessageType, sub.Abbrev())
		}
		m.values[fd.Name] = sub
		return nil

	case catalog.KindMessageList:
		subs, ok := value.([]*Message)
		if !ok {
			return validationErrorf(m.Abbrev(), fd.Name, "expected []*wire.Message, got %T", value)
		}
		if fd.MessageType != "" {
			for i, sub := range subs {
				if sub.Abbrev() != fd.MessageType {
					return validationErrorf(m.Abbrev(), fd.Name, "element %d: expected message type %s, got %s", i, fd.MessageType, sub.Abbrev())
				}
			}
		}
		m.values[fd.Name] = subs
		return nil

	case catalog.KindRawData:
		b, ok := value.([]byte)
		if !ok {
			return validationErrorf(m.Abbrev(), fd.Name, "expected []byte, got %T", value)
		}
		m.values[fd.Name] = b
		return nil

	case catalog.KindPlainText:
		s, ok := value.(string)
		if !ok {
			return validationErrorf(m.Abbrev(), fd.Name, "expected string, got %T", value)
		}
		m.values[fd.Name] = s
		return nil

	case catalog.KindFP32, catalog.KindFP64:
		f, ok := asFloat(value)
		if !ok {
			return validationErrorf(m.Abbrev(), fd.Name, "expected numeric value, got %T", value)
		}
		if err := checkRange(m.Abbrev(), fd, f); err != nil {
			return err
		}
		m.values[fd.Name] = f
		return nil

	case catalog.KindUInt8, catalog.KindUInt16, catalog.KindUInt32, catalog.KindUInt64:
		u, ok := asUint(value)
		if !ok {
			return validationErrorf(m.Abbrev(), fd.Name, "expected unsigned integer, got %T", value)
		}
		if max := unsignedMax(fd.Kind); u > max {
			return validationErrorf(m.Abbrev(), fd.Name, "%d overflows %s", u, fd.Kind)
		}
		if err := checkEnumAndRange(m.Abbrev(), fd, int64(u), float64(u)); err != nil {
			return err
		}
		m.values[fd.Name] = u
		return nil

	default: // signed integer kinds
		n, ok := asInt(value)
		if !ok {
			return validationErrorf(m.Abbrev(), fd.Name, "expected integer value, got %T", value)
		}
		if lo, hi := signedBounds(fd.Kind); n < lo || n > hi {
			return validationErrorf(m.Abbrev(), fd.Name, "%d overflows %s", n, fd.Kind)
		}
		if err := checkEnumAndRange(m.Abbrev(), fd, n, float64(n)); err != nil {
			return err
		}
		m.values[fd.Name] = n
		return nil
	}
}

func unsignedMax(k catalog.Kind) uint64 {
	switch k {
	case catalog.KindUInt8:
		return 1<<8 - 1
	case catalog.KindUInt16:
		return 1<<16 - 1
	case catalog.KindUInt32:
		return 1<<32 - 1
	}
	return 1<<64 - 1
}

func signedBounds(k catalog.Kind) (int64, int64) {
	switch k {
	case catalog.KindInt8:
		return -1 << 7, 1<<7 - 1
	case catalog.KindInt16:
		return -1 << 15, 1<<15 - 1
	case catalog.KindInt32:
		return -1 << 31, 1<<31 - 1
	}
	return -1 << 63, 1<<63 - 1
}

func checkEnumAndRange(abbrev string, fd *catalog.FieldDescriptor, n int64, f float64) error {
	if fd.IsEnumerated() && !fd.Enum.Has(n) {
		return validationErrorf(abbrev, fd.Name, "%d is not a member of enumeration %s", n, fd.Enum.Name)
	}
	return checkRange(abbrev, fd, f)
}

func checkRange(abbrev string, fd *catalog.FieldDescriptor, f float64) error {
	if fd.Min != nil && f < *fd.Min {
		return validationErrorf(abbrev, fd.Name, "%v is below minimum %v", f, *fd.Min)
	}
	if fd.Max != nil && f > *fd.Max {
		return validationErrorf(abbrev, fd.Name, "%v is above maximum %v", f, *fd.Max)
	}
	return nil
}

func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

func asUint(v interface{}) (uint64, bool) {
	n, ok := asInt(v)
	if ok && n >= 0 {
		return uint64(n), true
	}
	if u, ok := v.(uint64); ok {
		return u, true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		if i, ok := asInt(v); ok {
			return float64(i), true // integer -> floating is the only implicit conversion
		}
	}
	return 0, false
}

// ZeroFill assigns a kind-appropriate zero to every still-unset field, so
// a caller that only cares about a couple of fields (an Announce carrying
// just sys_name, the periodic EntityList query) can still pack without
// spelling out every field the schema declares. Enum fields whose
// enumeration has no zero member get the first declared symbol; ranged
// fields get their minimum when zero is out of range.
func (m *Message) ZeroFill() error {
	for i := range m.Desc.Fields {
		fd := &m.Desc.Fields[i]
		if _, ok := m.values[fd.Name]; ok {
			continue
		}
		var v interface{}
		switch fd.Kind {
		case catalog.KindMessage:
			v = nil
		case catalog.KindMessageList:
			v = []*Message{}
		case catalog.KindRawData:
			v = []byte{}
		case catalog.KindPlainText:
			v = ""
		case catalog.KindFP32, catalog.KindFP64:
			f := 0.0
			if fd.Min != nil && *fd.Min > 0 {
				f = *fd.Min
			}
			v = f
		default:
			n := int64(0)
			if fd.IsEnumerated() && !fd.Enum.Has(0) && len(fd.Enum.Order) > 0 {
				n = fd.Enum.ValueOf[fd.Enum.Order[0]]
			}
			if fd.Min != nil && float64(n) < *fd.Min {
				n = int64(*fd.Min)
			}
			v = n
		}
		if err := m.Set(fd.Name, v); err != nil {
			return err
		}
	}
	return nil
}

// Equals compares two messages: headers equal when both present, else
// fields only.
func (m *Message) Equals(other *Message) bool {
	if other == nil || m.Desc.Abbrev != other.Desc.Abbrev {
		return false
	}
	if m.Header != nil && other.Header != nil {
		if *m.Header != *other.Header {
			return false
		}
	}
	if len(m.values) != len(other.values) {
		return false
	}
	for k, v := range m.values {
		ov, ok := other.values[k]
		if !ok {
			return false
		}
		if !valuesEqual(v, ov) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case *Message:
		bv, ok := b.(*Message)
		if !ok {
			return false
		}
		if av == nil || bv == nil {
			return av == bv
		}
		return av.Equals(bv)
	case []*Message:
		bv, ok := b.([]*Message)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !av[i].Equals(bv[i]) {
				return false
			}
		}
		return true
	case []byte:
		bv, ok := b.([]byte)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := asFloat(b)
		return ok && av == bv
	case uint64:
		bv, ok := asUint(b)
		return ok && av == bv
	case int64:
		bv, ok := asInt(b)
		return ok && av == bv
	default:
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
}
