package httpapi

import (
	"errors"

	"github.com/zenqueue/zenqueue/internal/queue"
	"github.com/zenqueue/zenqueue/internal/server"
)

var errTooManyElements = errors.New("httpapi: request body must be [args, kwargs]")

func isTimeout(err error) bool {
	return errors.Is(err, queue.ErrTimeout)
}

func isActionErr(err error) bool {
	var ae *server.ActionError
	return errors.As(err, &ae)
}
