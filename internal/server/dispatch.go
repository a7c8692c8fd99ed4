package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/zenqueue/zenqueue/internal/queue"
)

// ActionError marks an error as the dispatched action's own fault (bad
// argument types, unknown keyword arguments, wrong arity). The connection
// handler replies `error:action` and keeps the connection open for these;
// every other error is treated as `error:unknown` and the connection is
// torn down.
type ActionError struct {
	msg string
}

func (e *ActionError) Error() string { return e.msg }

// NewActionError builds an ActionError with a formatted message.
func NewActionError(format string, args ...any) error {
	return &ActionError{msg: fmt.Sprintf(format, args...)}
}

// Handler is a typed dispatch target for one RPC action, invoked with the
// raw args and kwargs from the parsed request frame.
type Handler func(ctx context.Context, args []json.RawMessage, kwargs map[string]json.RawMessage) (any, error)

// Dispatcher maps RPC action names onto Handlers bound to a single shared
// Queue. It is safe for concurrent use; the same Dispatcher backs every
// connection.
type Dispatcher struct {
	queue    *queue.Queue
	handlers map[string]Handler
}

// NewDispatcher builds the fixed action table for q: push, push_many, pull,
// pull_many. quit/exit/shutdown are not dispatch targets — they are
// lifecycle signals handled directly by the connection handler.
func NewDispatcher(q *queue.Queue) *Dispatcher {
	d := &Dispatcher{queue: q}
	d.handlers = map[string]Handler{
		"push":      d.doPush,
		"push_many": d.doPushMany,
		"pull":      d.doPull,
		"pull_many": d.doPullMany,
	}
	return d
}

// Lookup returns the handler for action, or false if the action is unknown.
func (d *Dispatcher) Lookup(action string) (Handler, bool) {
	h, ok := d.handlers[action]
	return h, ok
}

func (d *Dispatcher) doPush(_ context.Context, args []json.RawMessage, kwargs map[string]json.RawMessage) (any, error) {
	if err := rejectKwargs(kwargs); err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, NewActionError("push expects exactly 1 argument, got %d", len(args))
	}
	var v any
	if err := json.Unmarshal(args[0], &v); err != nil {
		return nil, NewActionError("invalid value: %v", err)
	}
	d.queue.Push(v)
	return nil, nil
}

func (d *Dispatcher) doPushMany(_ context.Context, args []json.RawMessage, kwargs map[string]json.RawMessage) (any, error) {
	if err := rejectKwargs(kwargs); err != nil {
		return nil, err
	}
	values := make([]any, len(args))
	for i, raw := range args {
		if err := json.Unmarshal(raw, &values[i]); err != nil {
			return nil, NewActionError("invalid value at index %d: %v", i, err)
		}
	}
	d.queue.PushMany(values...)
	return nil, nil
}

func (d *Dispatcher) doPull(ctx context.Context, args []json.RawMessage, kwargs map[string]json.RawMessage) (any, error) {
	if err := allowOnlyKwargs(kwargs, "timeout"); err != nil {
		return nil, err
	}
	if len(args) != 0 {
		return nil, NewActionError("pull takes no positional arguments, got %d", len(args))
	}
	timeout, err := parseTimeoutKwarg(kwargs)
	if err != nil {
		return nil, err
	}
	return d.queue.Pull(ctx, timeout)
}

func (d *Dispatcher) doPullMany(ctx context.Context, args []json.RawMessage, kwargs map[string]json.RawMessage) (any, error) {
	if err := allowOnlyKwargs(kwargs, "timeout"); err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, NewActionError("pull_many requires exactly 1 positional argument (n), got %d", len(args))
	}
	n, err := parseOptionalInt(args[0])
	if err != nil {
		return nil, err
	}
	timeout, err := parseTimeoutKwarg(kwargs)
	if err != nil {
		return nil, err
	}
	values, err := d.queue.PullMany(ctx, n, timeout)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []any{}
	}
	return values, nil
}

// rejectKwargs fails if the caller sent any keyword arguments at all.
func rejectKwargs(kwargs map[string]json.RawMessage) error {
	return allowOnlyKwargs(kwargs)
}

// allowOnlyKwargs fails with an ActionError if kwargs contains any key not
// in allowed. Unknown keyword arguments are a protocol error.
func allowOnlyKwargs(kwargs map[string]json.RawMessage, allowed ...string) error {
	allow := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		allow[k] = true
	}
	for k := range kwargs {
		if !allow[k] {
			return NewActionError("unknown keyword argument %q", k)
		}
	}
	return nil
}

func parseTimeoutKwarg(kwargs map[string]json.RawMessage) (*time.Duration, error) {
	raw, ok := kwargs["timeout"]
	if !ok {
		return nil, nil
	}
	return parseOptionalSeconds(raw)
}

func parseOptionalSeconds(raw json.RawMessage) (*time.Duration, error) {
	if isJSONNull(raw) {
		return nil, nil
	}
	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return nil, NewActionError("timeout must be a number of seconds or null: %v", err)
	}
	if secs < 0 {
		return nil, NewActionError("timeout must not be negative")
	}
	d := time.Duration(secs * float64(time.Second))
	return &d, nil
}

func parseOptionalInt(raw json.RawMessage) (*int, error) {
	if isJSONNull(raw) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, NewActionError("n must be an integer or null: %v", err)
	}
	if f != math.Trunc(f) {
		return nil, NewActionError("n must be an integer or null, got %v", f)
	}
	n := int(f)
	if n < 0 {
		return nil, NewActionError("n must not be negative")
	}
	return &n, nil
}

func isJSONNull(raw json.RawMessage) bool {
	if raw == nil {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	return v == nil
}
