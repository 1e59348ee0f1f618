package normalizer

import "fmt"

// MissingFieldError is returned when a mandatory field is absent or blank
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// InvalidFieldError is returned when a mandatory field cannot be parsed
type InvalidFieldError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid value %q for field %q: %v", e.Value, e.Field, e.Err)
}

func (e *InvalidFieldError) Unwrap() error {
	return e.Err
}
