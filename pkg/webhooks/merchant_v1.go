package webhooks

import (
	"crypto/hmac"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

const (
	MerchantSignatureHeader = "Merchant-Signature"
	merchantScheme          = "merchant-hmac-sha256/hex"
)

type merchantVerifier struct{}

// NewMerchantVerifier checks the Merchant-Signature header that agents
// receive on order webhooks. The header carries a bare hex HMAC of the body.
func NewMerchantVerifier() Verifier {
	return merchantVerifier{}
}

func (merchantVerifier) Scheme() string { return merchantScheme }

func (merchantVerifier) Verify(headers http.Header, rawBody []byte, _ time.Time, secret string) (VerificationResult, error) {
	if strings.TrimSpace(secret) == "" {
		return VerificationResult{}, ErrSecretEmpty
	}
	res := VerificationResult{
		Scheme: merchantScheme,
		Details: map[string]any{
			"signature_header_present": false,
			"signature_hex_decodable":  false,
		},
	}
	sigHex := strings.TrimSpace(headers.Get(MerchantSignatureHeader))
	if sigHex == "" {
		res.Reason = "signature_missing"
		return res, nil
	}
	res.Details["signature_header_present"] = true

	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		res.Reason = "signature_not_hex"
		return res, nil
	}
	res.Details["signature_hex_decodable"] = true

	res.Valid = hmac.Equal(mac(secret, rawBody), provided)
	if !res.Valid {
		res.Reason = "signature_mismatch"
	}
	return res, nil
}
