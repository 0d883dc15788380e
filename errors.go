package gqlexec

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds returned by executors and the client.
var (
	ErrInvalidEndpointScheme = errors.New("invalid endpoint scheme")
	ErrConnection            = errors.New("connection failure")
	ErrConnectionInit        = errors.New("connection init error")
	ErrMalformedResponse     = errors.New("malformed response")
	ErrSink                  = errors.New("sink error")
)

// wrapError tags err with an error kind while keeping the cause reachable.
func wrapError(err error, kind error, message string) error {
	if err == nil {
		return fmt.Errorf("%w: %s", kind, message)
	}
	return fmt.Errorf("%w: %s: %w", kind, message, err)
}

// IsRetryable reports whether another attempt could succeed where err failed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidEndpointScheme) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
