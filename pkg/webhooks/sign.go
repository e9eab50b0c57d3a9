package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// PayloadHash is the sha-256 of the exact bytes, hex encoded.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func mac(secret string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	_, _ = m.Write(body)
	return m.Sum(nil)
}

// SignBase64URL signs inbound requests and PSP calls (unpadded base64url).
func SignBase64URL(secret string, body []byte) string {
	return base64.RawURLEncoding.EncodeToString(mac(secret, body))
}

// SignHex signs outbound merchant webhooks.
func SignHex(secret string, body []byte) string {
	return hex.EncodeToString(mac(secret, body))
}
