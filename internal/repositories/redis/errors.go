package redis

import (
	"context"
	"errors"
	"fmt"
	"net"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tindahan/api/internal/repositories"
)

// Error implements repositories.RepositoryError for Redis backed stores.
type Error struct {
	op          string
	err         error
	notFound    bool
	unavailable bool
}

var _ repositories.RepositoryError = (*Error)(nil)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return false }
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e := &Error{op: op, err: err}
	var netErr net.Error
	switch {
	case errors.Is(err, goredis.Nil):
		e.notFound = true
	case errors.Is(err, goredis.ErrClosed), errors.As(err, &netErr):
		e.unavailable = true
	}
	return e
}
