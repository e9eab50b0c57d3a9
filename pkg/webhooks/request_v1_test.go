package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"
	"time"
)

func signedHeaders(secret string, body []byte, ts time.Time) http.Header {
	h := http.Header{}
	h.Set("Signature", SignBase64URL(secret, body))
	if !ts.IsZero() {
		h.Set("Timestamp", ts.UTC().Format(time.RFC3339))
	}
	return h
}

func TestRequestVerifier_ValidSignature(t *testing.T) {
	body := []byte(`{"items":[{"id":"mug","quantity":2}]}`)
	now := time.Date(2025, 9, 29, 12, 0, 0, 0, time.UTC)

	got, err := NewRequestVerifier().Verify(signedHeaders("s3cret", body, now.Add(-10*time.Second)), body, now, "s3cret")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !got.Valid {
		t.Fatalf("expected valid signature, reason=%s", got.Reason)
	}
	if got.Scheme != "acp-hmac-sha256/base64url" {
		t.Fatalf("unexpected scheme: %s", got.Scheme)
	}
}

func TestRequestVerifier_MatchesManualHMAC(t *testing.T) {
	body := []byte(`{"a":1}`)
	m := hmac.New(sha256.New, []byte("k"))
	_, _ = m.Write(body)
	want := base64.RawURLEncoding.EncodeToString(m.Sum(nil))
	if got := SignBase64URL("k", body); got != want {
		t.Fatalf("signature mismatch: got %s want %s", got, want)
	}
}

func TestRequestVerifier_TamperedBodyFails(t *testing.T) {
	body := []byte(`{"a":1}`)
	h := signedHeaders("s3cret", body, time.Time{})
	got, err := NewRequestVerifier().Verify(h, []byte(`{"a":2}`), time.Now(), "s3cret")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if got.Valid || got.Reason != "signature_mismatch" {
		t.Fatalf("expected mismatch, got %#v", got)
	}
}

func TestRequestVerifier_WrongSecretFails(t *testing.T) {
	body := []byte(`{"a":1}`)
	h := signedHeaders("s3cret", body, time.Time{})
	got, err := NewRequestVerifier().Verify(h, body, time.Now(), "other")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if got.Valid {
		t.Fatalf("expected invalid signature with different secret")
	}
}

func TestRequestVerifier_TimestampWindow(t *testing.T) {
	body := []byte(`{}`)
	now := time.Date(2025, 9, 29, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		ts    time.Time
		valid bool
	}{
		{"inside past", now.Add(-299 * time.Second), true},
		{"inside future", now.Add(299 * time.Second), true},
		{"too old", now.Add(-301 * time.Second), false},
		{"too far ahead", now.Add(301 * time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewRequestVerifier().Verify(signedHeaders("s", body, tc.ts), body, now, "s")
			if err != nil {
				t.Fatalf("Verify error: %v", err)
			}
			if got.Valid != tc.valid {
				t.Fatalf("valid=%v want %v (reason=%s)", got.Valid, tc.valid, got.Reason)
			}
		})
	}
}

func TestRequestVerifier_BadTimestampRejected(t *testing.T) {
	body := []byte(`{}`)
	h := signedHeaders("s", body, time.Time{})
	h.Set("Timestamp", "yesterday")
	got, err := NewRequestVerifier().Verify(h, body, time.Now(), "s")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if got.Valid || got.Reason != "timestamp_invalid" {
		t.Fatalf("expected timestamp_invalid, got %#v", got)
	}
}

func TestRequestVerifier_PaddedSignatureAccepted(t *testing.T) {
	body := []byte(`{"x":"y"}`)
	h := http.Header{}
	h.Set("Signature", base64.URLEncoding.EncodeToString(mac("s", body)))
	got, err := NewRequestVerifier().Verify(h, body, time.Now(), "s")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !got.Valid {
		t.Fatalf("expected padded base64url signature to verify, reason=%s", got.Reason)
	}
}

func TestRequestVerifier_EmptySecret(t *testing.T) {
	_, err := NewRequestVerifier().Verify(http.Header{}, nil, time.Now(), " ")
	if !errors.Is(err, ErrSecretEmpty) {
		t.Fatalf("expected ErrSecretEmpty, got %v", err)
	}
}
