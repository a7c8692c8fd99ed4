package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseRequestActionOnly(t *testing.T) {
	req, err := ParseRequest([]byte(`["quit"]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Action != "quit" || len(req.Args) != 0 || len(req.Kwargs) != 0 {
		t.Fatalf("got %+v", req)
	}
}

func TestParseRequestWithArgsAndKwargs(t *testing.T) {
	req, err := ParseRequest([]byte(`["pull", [], {"timeout": 1.0}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Action != "pull" {
		t.Fatalf("action = %q", req.Action)
	}
	if len(req.Args) != 0 {
		t.Fatalf("args = %v", req.Args)
	}
	var timeout float64
	if err := json.Unmarshal(req.Kwargs["timeout"], &timeout); err != nil {
		t.Fatalf("decode timeout: %v", err)
	}
	if timeout != 1.0 {
		t.Fatalf("timeout = %v", timeout)
	}
}

func TestParseRequestMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`{"not": "an array"}`),
		[]byte(`not json at all`),
		[]byte(`[]`),
		[]byte(`[1, 2, 3, 4]`),
		[]byte(`[123]`),
	}
	for _, c := range cases {
		if _, err := ParseRequest(c); err == nil {
			t.Fatalf("expected error for %s", c)
		}
	}
}

func TestEncodeResponseRoundTrip(t *testing.T) {
	line, err := Encode(StatusSuccess, "hello")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if line[len(line)-2] != '\r' || line[len(line)-1] != '\n' {
		t.Fatalf("response not terminated with CRLF: %q", line)
	}

	resp, err := DecodeResponse(line[:len(line)-2])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != StatusSuccess || resp.Payload != "hello" {
		t.Fatalf("got %+v", resp)
	}
}

func TestEncodeRequestDefaultsArgsAndKwargs(t *testing.T) {
	line, err := EncodeRequest("quit", nil, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	req, err := ParseRequest(line[:len(line)-2])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Action != "quit" || len(req.Args) != 0 || len(req.Kwargs) != 0 {
		t.Fatalf("got %+v", req)
	}
}
