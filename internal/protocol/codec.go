// Package protocol implements ZenQueue's line-delimited JSON-RPC framing:
// encoding and decoding a single request frame or response frame. It knows
// nothing about sockets, dispatch, or the queue itself.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Status is the response status vocabulary.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusErrorRequest Status = "error:request"
	StatusErrorAction  Status = "error:action"
	StatusErrorTimeout Status = "error:timeout"
	StatusErrorUnknown Status = "error:unknown"
)

// Request is a parsed `[action, args?, kwargs?]` frame. Args defaults to an
// empty slice and Kwargs to an empty map when the corresponding element is
// missing from the wire frame.
type Request struct {
	Action string
	Args   []json.RawMessage
	Kwargs map[string]json.RawMessage
}

// ParseRequest decodes a single request line (without its trailing \r\n)
// into a Request. It returns an error for anything that is not a JSON array
// of 1 to 3 elements whose first element is a string.
func ParseRequest(line []byte) (Request, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return Request{}, fmt.Errorf("protocol: malformed request: %w", err)
	}
	if len(raw) < 1 || len(raw) > 3 {
		return Request{}, fmt.Errorf("protocol: request must have 1 to 3 elements, got %d", len(raw))
	}

	var action string
	if err := json.Unmarshal(raw[0], &action); err != nil {
		return Request{}, fmt.Errorf("protocol: action must be a string: %w", err)
	}

	req := Request{Action: action, Args: []json.RawMessage{}, Kwargs: map[string]json.RawMessage{}}

	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &req.Args); err != nil {
			return Request{}, fmt.Errorf("protocol: args must be an array: %w", err)
		}
	}
	if len(raw) > 2 {
		if err := json.Unmarshal(raw[2], &req.Kwargs); err != nil {
			return Request{}, fmt.Errorf("protocol: kwargs must be an object: %w", err)
		}
	}

	return req, nil
}

// Response is a `[status, payload]` frame.
type Response struct {
	Status  Status
	Payload any
}

// Encode renders a Response as a single `\r\n`-terminated line.
func Encode(status Status, payload any) ([]byte, error) {
	body, err := json.Marshal([2]any{status, payload})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode response: %w", err)
	}
	return append(body, '\r', '\n'), nil
}

// EncodeRequest renders a `[action, args, kwargs]` request line, used by the
// client. args and kwargs may be nil, which encode as [] and {}.
func EncodeRequest(action string, args []any, kwargs map[string]any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	body, err := json.Marshal([3]any{action, args, kwargs})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode request: %w", err)
	}
	return append(body, '\r', '\n'), nil
}

// DecodeResponse parses a `[status, payload]` line (without its trailing
// \r\n) into a Response.
func DecodeResponse(line []byte) (Response, error) {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return Response{}, fmt.Errorf("protocol: malformed response: %w", err)
	}
	var status string
	if err := json.Unmarshal(raw[0], &status); err != nil {
		return Response{}, fmt.Errorf("protocol: response status must be a string: %w", err)
	}
	var payload any
	if err := json.Unmarshal(raw[1], &payload); err != nil {
		return Response{}, fmt.Errorf("protocol: decode payload: %w", err)
	}
	return Response{Status: Status(status), Payload: payload}, nil
}
