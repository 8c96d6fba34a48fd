package plan

import "fmt"

// insufficientDevicesError reports a parallelism product that exceeds the
// visible device count. Surfaced before any engine is started: running out
// of devices mid-load is far costlier to recover from.
type insufficientDevicesError struct{ required, available int }

func (e insufficientDevicesError) Error() string {
	return fmt.Sprintf("insufficient devices: need %d, have %d", e.required, e.available)
}

// ErrInsufficientDevices constructs an insufficientDevicesError.
func ErrInsufficientDevices(required, available int) error {
	return insufficientDevicesError{required: required, available: available}
}

// IsInsufficientDevices reports whether err indicates too few visible devices.
func IsInsufficientDevices(err error) bool {
	_, ok := err.(insufficientDevicesError)
	return ok
}

// RequiredAvailable extracts the counts from an insufficientDevicesError for
// callers that render actionable messages. ok is false for other errors.
func RequiredAvailable(err error) (required, available int, ok bool) {
	e, ok := err.(insufficientDevicesError)
	return e.required, e.available, ok
}

// unsupportedParallelismError reports a combination of parallelism degrees
// the backend cannot honor. We fail instead of silently picking one.
type unsupportedParallelismError struct{ reason string }

func (e unsupportedParallelismError) Error() string {
	return "unsupported parallelism combination: " + e.reason
}

// ErrUnsupportedParallelism constructs an unsupportedParallelismError.
func ErrUnsupportedParallelism(reason string) error {
	return unsupportedParallelismError{reason: reason}
}

// IsUnsupportedParallelism reports whether err indicates a rejected
// parallelism combination.
func IsUnsupportedParallelism(err error) bool {
	_, ok := err.(unsupportedParallelismError)
	return ok
}
