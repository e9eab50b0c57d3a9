package httpx

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// MaxBodyBytes bounds every request body the service reads.
const MaxBodyBytes = 1 << 20

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadBody returns the raw request bytes. Signature checks and idempotency
// hashing both work on these exact bytes.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	return io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
}

// ErrorBody is the flat protocol error object.
type ErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, typ, code, message, param string) {
	WriteJSON(w, status, ErrorBody{Type: typ, Code: code, Message: message, Param: param})
}
