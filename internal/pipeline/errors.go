package pipeline

import "fmt"

// InsufficientDataError reports a series shorter than the largest configured
// indicator window. Only returned in strict mode; the default behavior is to
// produce the (valid) all-undefined output.
type InsufficientDataError struct {
	Rows   int
	Window int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d rows for window %d", e.Rows, e.Window)
}
