package httpx

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteErrorOmitsEmptyParam(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, 404, "not_found", "resource_not_found", "Checkout session not found", "")
	if rr.Code != 404 {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if ct := rr.Header().Get("content-type"); ct != "application/json" {
		t.Fatalf("unexpected content-type %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["param"]; ok {
		t.Fatalf("param must be omitted when empty: %v", body)
	}
	if body["type"] != "not_found" || body["code"] != "resource_not_found" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestReadBodyReturnsExactBytes(t *testing.T) {
	raw := `{"items": [ {"id":"mug"} ]}`
	req := httptest.NewRequest("POST", "/checkout_sessions", strings.NewReader(raw))
	got, err := ReadBody(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if string(got) != raw {
		t.Fatalf("body changed: %q", got)
	}
}

func TestNewRequestIDPrefix(t *testing.T) {
	if id := NewRequestID(); !strings.HasPrefix(id, "req_") || len(id) != 40 {
		t.Fatalf("unexpected request id %q", id)
	}
}
