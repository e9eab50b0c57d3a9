package webhooks

import (
	"errors"
	"net/http"
	"time"
)

var ErrSecretEmpty = errors.New("webhooks: signing secret is empty")

type VerificationResult struct {
	Valid   bool           `json:"valid"`
	Scheme  string         `json:"scheme"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details"`
}

// Verifier checks a signed payload against a shared secret. An error is
// returned only when the verifier itself cannot run; a bad signature is
// reported through VerificationResult.
type Verifier interface {
	Scheme() string
	Verify(headers http.Header, rawBody []byte, receivedAt time.Time, secret string) (VerificationResult, error)
}
