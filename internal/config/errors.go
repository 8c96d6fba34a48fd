package config

import "fmt"

// unrecognizedOptionError signals a model-args key that is not part of the
// documented option surface. Unknown keys never fall back to defaults.
type unrecognizedOptionError struct{ key string }

func (e unrecognizedOptionError) Error() string { return "unrecognized option: " + e.key }

// ErrUnrecognizedOption constructs an unrecognizedOptionError for key.
func ErrUnrecognizedOption(key string) error { return unrecognizedOptionError{key: key} }

// IsUnrecognizedOption reports whether err names an unknown option key.
func IsUnrecognizedOption(err error) bool {
	_, ok := err.(unrecognizedOptionError)
	return ok
}

// invalidOptionValueError signals a value that could not be coerced to the
// option's declared type.
type invalidOptionValueError struct {
	key   string
	value string
	want  string
}

func (e invalidOptionValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: %q (expected %s)", e.key, e.value, e.want)
}

// ErrInvalidOptionValue constructs an invalidOptionValueError.
func ErrInvalidOptionValue(key, value, want string) error {
	return invalidOptionValueError{key: key, value: value, want: want}
}

// IsInvalidOptionValue reports whether err indicates a type-coercion failure.
func IsInvalidOptionValue(err error) bool {
	_, ok := err.(invalidOptionValueError)
	return ok
}

// outOfRangeOptionError signals a well-typed value outside its documented range.
type outOfRangeOptionError struct {
	key        string
	value      string
	constraint string
}

func (e outOfRangeOptionError) Error() string {
	return fmt.Sprintf("option %s out of range: %s (must be %s)", e.key, e.value, e.constraint)
}

// ErrOutOfRangeOption constructs an outOfRangeOptionError.
func ErrOutOfRangeOption(key, value, constraint string) error {
	return outOfRangeOptionError{key: key, value: value, constraint: constraint}
}

// IsOutOfRangeOption reports whether err indicates a range violation.
func IsOutOfRangeOption(err error) bool {
	_, ok := err.(outOfRangeOptionError)
	return ok
}
