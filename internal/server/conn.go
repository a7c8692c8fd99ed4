package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zenqueue/zenqueue/internal/protocol"
	"github.com/zenqueue/zenqueue/internal/queue"
)

// quitActions are aliases that end a connection without a response line.
var quitActions = map[string]bool{"quit": true, "exit": true, "shutdown": true}

// handleConn runs one connection's read-dispatch-respond loop until the
// client disconnects, sends a quit action, or an unrecoverable error
// occurs. It never returns until the connection is fully done with.
func handleConn(ctx context.Context, conn net.Conn, dispatcher *Dispatcher, metrics Metrics, log zerolog.Logger) {
	connID := uuid.New().String()
	log = log.With().Str("conn_id", connID).Str("remote_addr", conn.RemoteAddr().String()).Logger()
	log.Info().Msg("client connected")

	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()
	defer conn.Close()

	reader := bufio.NewReader(conn)

	for {
		line, err := readLine(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("client disconnected")
				return
			}
			log.Error().Err(err).Msg("read error, forcing disconnection")
			return
		}

		if len(line) == 0 {
			// Blank line: ignored, no response.
			continue
		}

		req, err := protocol.ParseRequest(line)
		if err != nil {
			writeResponse(conn, log, protocol.StatusErrorRequest, "malformed request")
			continue
		}

		if quitActions[req.Action] {
			log.Info().Str("action", req.Action).Msg("client requested disconnect")
			halfClose(conn)
			return
		}

		handler, ok := dispatcher.Lookup(req.Action)
		if !ok {
			writeResponse(conn, log, protocol.StatusErrorRequest, "action not found")
			continue
		}

		output, actionErr := invoke(ctx, handler, req)

		switch {
		case actionErr == nil:
			metrics.ActionSucceeded(req.Action)
			if err := writeResponse(conn, log, protocol.StatusSuccess, output); err != nil {
				return
			}

		case errors.Is(actionErr, queue.ErrTimeout):
			metrics.ActionTimedOut(req.Action)
			if err := writeResponse(conn, log, protocol.StatusErrorTimeout, nil); err != nil {
				return
			}

		case isActionError(actionErr):
			metrics.ActionFailed(req.Action)
			log.Warn().Str("action", req.Action).Err(actionErr).Msg("action error")
			if err := writeResponse(conn, log, protocol.StatusErrorAction, actionErr.Error()); err != nil {
				return
			}

		default:
			metrics.ActionFailed(req.Action)
			log.Error().Str("action", req.Action).Err(actionErr).Msg("unknown error, forcing disconnection")
			writeResponse(conn, log, protocol.StatusErrorUnknown, actionErr.Error())
			return
		}
	}
}

// invoke runs handler, converting a panic into the same shape as any other
// unexpected error so that a handler bug degrades to `error:unknown` plus
// connection teardown instead of crashing the server.
func invoke(ctx context.Context, handler Handler, req protocol.Request) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errFromPanic(r)
		}
	}()
	return handler(ctx, req.Args, req.Kwargs)
}

func isActionError(err error) bool {
	var ae *ActionError
	return errors.As(err, &ae)
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if len(line) == 0 {
			return nil, err
		}
		// A partial final line with no trailing newline (connection
		// closed mid-frame) is treated the same as EOF: no response.
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func writeResponse(conn net.Conn, log zerolog.Logger, status protocol.Status, payload any) error {
	line, err := protocol.Encode(status, payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		return err
	}
	if _, err := conn.Write(line); err != nil {
		log.Error().Err(err).Msg("write error")
		return err
	}
	return nil
}

func halfClose(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
		return
	}
	_ = conn.Close()
}

func errFromPanic(r any) error {
	return &unknownErr{value: r}
}

type unknownErr struct{ value any }

func (e *unknownErr) Error() string {
	return "panic: " + toString(e.value)
}

func toString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "non-string panic value"
}
