package hashchain

import "fmt"

// FormatError is returned for any structural rejection of a hash-chain
// blob, per spec.md §4.2/§8. Messages are stable — test suites assert on
// them directly, so never reformat an existing message string.
type FormatError struct {
	Message string
}

func (e *FormatError) Error() string { return e.Message }

func newFormatError(format string, args ...interface{}) *FormatError {
	return &FormatError{Message: fmt.Sprintf(format, args...)}
}
