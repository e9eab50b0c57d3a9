package webhooks

import (
	"crypto/hmac"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const (
	SignatureHeader = "Signature"
	TimestampHeader = "Timestamp"

	requestScheme           = "acp-hmac-sha256/base64url"
	DefaultRequestTolerance = 300 * time.Second
)

type requestVerifier struct {
	tolerance time.Duration
}

// NewRequestVerifier verifies the Signature header of inbound checkout
// requests. A Timestamp header, when present, must be RFC3339 and within
// tolerance of receivedAt in either direction.
func NewRequestVerifier() Verifier {
	return &requestVerifier{tolerance: DefaultRequestTolerance}
}

func NewRequestVerifierWithTolerance(tolerance time.Duration) Verifier {
	return &requestVerifier{tolerance: tolerance}
}

func (v *requestVerifier) Scheme() string { return requestScheme }

func (v *requestVerifier) Verify(headers http.Header, rawBody []byte, receivedAt time.Time, secret string) (VerificationResult, error) {
	if strings.TrimSpace(secret) == "" {
		return VerificationResult{}, ErrSecretEmpty
	}

	sig := strings.TrimSpace(headers.Get(SignatureHeader))
	ts := strings.TrimSpace(headers.Get(TimestampHeader))
	res := VerificationResult{
		Scheme: requestScheme,
		Details: map[string]any{
			"signature_header_present": sig != "",
			"timestamp_header_present": ts != "",
			"tolerance_seconds":        int(v.tolerance / time.Second),
		},
	}
	if sig == "" {
		res.Reason = "signature_missing"
		return res, nil
	}

	provided, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(sig, "="))
	if err != nil {
		res.Reason = "signature_not_base64url"
		return res, nil
	}
	if !hmac.Equal(mac(secret, rawBody), provided) {
		res.Reason = "signature_mismatch"
		return res, nil
	}

	if ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			res.Reason = "timestamp_invalid"
			return res, nil
		}
		skew := receivedAt.Sub(parsed)
		if skew < 0 {
			skew = -skew
		}
		res.Details["skew_seconds"] = int(skew / time.Second)
		if v.tolerance > 0 && skew > v.tolerance {
			res.Reason = "timestamp_out_of_tolerance"
			return res, nil
		}
	}

	res.Valid = true
	return res, nil
}
