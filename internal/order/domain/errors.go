package domain

import (
	"errors"
	"fmt"
)

// ClientError marks failures the caller can correct: malformed input,
// unknown products, insufficient stock. Anything else is treated as an
// infrastructure error and reported generically.
type ClientError struct {
	Msg string
}

func (e *ClientError) Error() string { return e.Msg }

func Clientf(format string, args ...any) error {
	return &ClientError{Msg: fmt.Sprintf(format, args...)}
}

func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}
