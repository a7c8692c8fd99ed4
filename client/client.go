// Package client implements ZenQueue's client runtime: a single TCP
// connection safe for concurrent use by many in-process callers.
//
// Exactly one request is ever on the wire at a time. Callers serialize on
// a channel-based binary semaphore rather than a sync.Mutex, because
// acquiring it must itself be cancellable: a caller whose context is done
// before its turn arrives must be able to walk away without ever touching
// the socket. Once a request has been written, the turn-holder always
// reads the matching response (or tears down the connection trying) before
// releasing the turn; a caller's context cancellation after that point
// does not desynchronize the shared socket.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/zenqueue/zenqueue/internal/protocol"
)

// Sentinel errors surfaced to callers, mapped from response status.
var (
	ErrRequestError = errors.New("zenqueue: request error")
	ErrActionError  = errors.New("zenqueue: action error")
	ErrTimeout      = errors.New("zenqueue: timeout")
	ErrUnknownError = errors.New("zenqueue: unknown server error")
	ErrClosedClient = errors.New("zenqueue: client is closed")
)

// Client owns one TCP connection to a ZenQueue server. The zero value is
// not usable; construct with Dial.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	turn   chan struct{} // binary semaphore: serializes request/response round-trips
	closed chan struct{}
}

// Dial connects to addr and returns a ready-to-use Client.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("zenqueue: dial %s: %w", addr, err)
	}
	return newClient(conn), nil
}

// DialContext is like Dial but honors ctx for the connection attempt.
func DialContext(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("zenqueue: dial %s: %w", addr, err)
	}
	return newClient(conn), nil
}

func newClient(conn net.Conn) *Client {
	c := &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		turn:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	return c
}

// Push appends v to the queue's tail. It never blocks on the server (push
// has no backpressure) beyond the client's own serialization turn.
func (c *Client) Push(ctx context.Context, v any) error {
	_, err := c.call(ctx, "push", []any{v}, nil)
	return err
}

// PushMany appends values in order.
func (c *Client) PushMany(ctx context.Context, values ...any) error {
	_, err := c.call(ctx, "push_many", values, nil)
	return err
}

// Pull removes and returns the head value, blocking server-side up to
// timeout (nil means wait forever).
func (c *Client) Pull(ctx context.Context, timeout *time.Duration) (any, error) {
	return c.call(ctx, "pull", nil, kwargsWithTimeout(timeout))
}

// PullMany requests up to n values (nil means unbounded), each bounded by
// timeout server-side. See queue.Queue.PullMany for the partial-result
// rule this mirrors.
func (c *Client) PullMany(ctx context.Context, n *int, timeout *time.Duration) ([]any, error) {
	out, err := c.call(ctx, "pull_many", []any{intOrNil(n)}, kwargsWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	raw, _ := out.([]any)
	return raw, nil
}

// Close sends ["quit"] and closes the socket. It is idempotent: the second
// and later calls return ErrClosedClient immediately without touching the
// network again.
func (c *Client) Close() error {
	select {
	case <-c.closed:
		return ErrClosedClient
	default:
	}

	select {
	case c.turn <- struct{}{}:
	case <-c.closed:
		return ErrClosedClient
	}
	defer func() { <-c.turn }()

	select {
	case <-c.closed:
		return ErrClosedClient
	default:
	}
	close(c.closed)

	line, err := protocol.EncodeRequest("quit", nil, nil)
	if err == nil {
		_, _ = c.conn.Write(line)
	}
	return c.conn.Close()
}

// call performs one full request/response round trip, serialized against
// every other concurrent caller on this Client.
func (c *Client) call(ctx context.Context, action string, args []any, kwargs map[string]any) (any, error) {
	select {
	case c.turn <- struct{}{}:
	case <-c.closed:
		return nil, ErrClosedClient
	case <-ctx.Done():
		// Still queued for a turn: walk away without touching the socket.
		return nil, ctx.Err()
	}
	defer func() { <-c.turn }()

	select {
	case <-c.closed:
		return nil, ErrClosedClient
	default:
	}

	line, err := protocol.EncodeRequest(action, args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("zenqueue: encode request: %w", err)
	}

	// Once the request is written, we own reading its response: no further
	// context cancellation is honored mid-round-trip.
	if _, err := c.conn.Write(line); err != nil {
		c.teardown()
		return nil, fmt.Errorf("%w: %v", ErrUnknownError, err)
	}

	respLine, err := c.reader.ReadString('\n')
	if err != nil {
		c.teardown()
		return nil, fmt.Errorf("%w: %v", ErrUnknownError, err)
	}
	respLine = trimCRLF(respLine)

	resp, err := protocol.DecodeResponse([]byte(respLine))
	if err != nil {
		c.teardown()
		return nil, fmt.Errorf("%w: %v", ErrUnknownError, err)
	}

	return mapResponse(resp)
}

func mapResponse(resp protocol.Response) (any, error) {
	switch resp.Status {
	case protocol.StatusSuccess:
		return resp.Payload, nil
	case protocol.StatusErrorRequest:
		return nil, fmt.Errorf("%w: %v", ErrRequestError, resp.Payload)
	case protocol.StatusErrorAction:
		return nil, fmt.Errorf("%w: %v", ErrActionError, resp.Payload)
	case protocol.StatusErrorTimeout:
		return nil, ErrTimeout
	default:
		return nil, fmt.Errorf("%w: status %q", ErrUnknownError, resp.Status)
	}
}

// teardown marks the client dead after a transport-level failure: a
// malformed or unreadable response leaves the connection unusable. It does
// not re-close an already-closed socket.
func (c *Client) teardown() {
	select {
	case <-c.closed:
		return
	default:
	}
	close(c.closed)
	_ = c.conn.Close()
}

func kwargsWithTimeout(timeout *time.Duration) map[string]any {
	if timeout == nil {
		return nil
	}
	return map[string]any{"timeout": timeout.Seconds()}
}

func intOrNil(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
