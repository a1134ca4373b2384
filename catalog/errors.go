package catalog

import "fmt"

// SchemaError wraps a fatal failure parsing the IMC XML schema.
type SchemaError struct {
	Context string
	Err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("imc schema: %s: %s", e.Context, e.Err.Error())
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

func schemaErrorf(context string, err error) error {
	return &SchemaError{Context: context, Err: err}
}
