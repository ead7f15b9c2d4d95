package errors

import "fmt"

var (
	ErrWorkerPanic    = fmt.Errorf("worker panic")
	ErrMalformedFrame = fmt.Errorf("malformed frame")
	ErrConnClosed     = fmt.Errorf("connection closed")
)
