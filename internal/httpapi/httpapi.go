// Package httpapi implements ZenQueue's optional HTTP adapter: a thin
// POST-per-action mapping onto the same Dispatcher the native line
// protocol uses.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zenqueue/zenqueue/internal/protocol"
	"github.com/zenqueue/zenqueue/internal/queue"
	"github.com/zenqueue/zenqueue/internal/server"
)

// Handler serves the four RPC actions over HTTP, each at POST /{action}/.
type Handler struct {
	dispatcher *server.Dispatcher
	metrics    server.Metrics
	log        zerolog.Logger
}

// NewHandler builds an http.Handler bound to q. metrics may be nil (a
// NoopMetrics is substituted, matching server.NewServer's own default).
func NewHandler(q *queue.Queue, metrics server.Metrics, log zerolog.Logger) http.Handler {
	if metrics == nil {
		metrics = server.NoopMetrics{}
	}
	h := &Handler{
		dispatcher: server.NewDispatcher(q),
		metrics:    metrics,
		log:        log,
	}

	mux := http.NewServeMux()
	for _, action := range []string{"push", "push_many", "pull", "pull_many"} {
		mux.Handle("/"+action+"/", h.actionHandler(action))
	}
	mux.HandleFunc("/", h.notFound)
	return withRequestLog(log, mux)
}

// notFound answers any path that isn't one of the four registered actions
// with the same [status, payload] framing the rest of the API uses.
func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusNotFound, protocol.StatusErrorRequest, "action not found")
}

// requestBody is the HTTP variant's frame: `[args, kwargs]`, an array of
// 0-2 elements.
type requestBody struct {
	Args   []json.RawMessage
	Kwargs map[string]json.RawMessage
}

func (h *Handler) actionHandler(action string) http.HandlerFunc {
	handler, ok := h.dispatcher.Lookup(action)
	if !ok {
		panic("httpapi: action " + action + " not registered in dispatcher")
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		body, err := parseRequestBody(r.Body)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, protocol.StatusErrorRequest, "malformed request")
			return
		}

		start := time.Now()
		output, err := handler(r.Context(), body.Args, body.Kwargs)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			h.metrics.ActionSucceeded(action)
			h.log.Debug().Str("action", action).Dur("elapsed", elapsed).Msg("action completed")
			h.writeJSON(w, http.StatusOK, protocol.StatusSuccess, output)

		case isTimeout(err):
			h.metrics.ActionTimedOut(action)
			h.writeJSON(w, http.StatusOK, protocol.StatusErrorTimeout, nil)

		case isActionErr(err):
			h.metrics.ActionFailed(action)
			h.writeJSON(w, http.StatusInternalServerError, protocol.StatusErrorAction, err.Error())

		default:
			h.metrics.ActionFailed(action)
			h.log.Error().Str("action", action).Err(err).Msg("unknown error serving HTTP action")
			h.writeJSON(w, http.StatusInternalServerError, protocol.StatusErrorUnknown, err.Error())
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, httpStatus int, status protocol.Status, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	body, err := json.Marshal([2]any{status, payload})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode HTTP response")
		return
	}
	_, _ = w.Write(body)
}

// parseRequestBody reads `[args, kwargs]` from body. An empty body is
// treated as `[[], {}]` (no payload, no options).
func parseRequestBody(body io.Reader) (requestBody, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return requestBody{}, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return requestBody{Args: []json.RawMessage{}, Kwargs: map[string]json.RawMessage{}}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return requestBody{}, err
	}
	if len(raw) > 2 {
		return requestBody{}, errTooManyElements
	}

	rb := requestBody{Args: []json.RawMessage{}, Kwargs: map[string]json.RawMessage{}}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw[0], &rb.Args); err != nil {
			return requestBody{}, err
		}
	}
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &rb.Kwargs); err != nil {
			return requestBody{}, err
		}
	}
	return rb, nil
}

func withRequestLog(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		log.Debug().Str("request_id", reqID).Str("method", r.Method).Str("path", r.URL.Path).Msg("http request")
		next.ServeHTTP(w, r)
	})
}
