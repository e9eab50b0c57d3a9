package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accordsai/checkoutlane/pkg/webhooks"
	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
)

func pspServer(t *testing.T, status int, respBody string, seen *http.Request, seenBody *[]byte) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if seen != nil {
			*seen = *r.Clone(context.Background())
			*seenBody = b
		}
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestChargeSendsSignedRequest(t *testing.T) {
	var (
		seen     http.Request
		seenBody []byte
	)
	ts := pspServer(t, 201, `{"id":"pi_123","status":"succeeded","amount":2750,"currency":"usd","created":1700000000}`, &seen, &seenBody)

	c := NewClient(0)
	c.Now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	intent, err := c.Charge(context.Background(), Credentials{
		URL: ts.URL + "/", MerchantSecretKey: "sk_test", ChargeEndpoint: "/v1/charges", SignatureSecret: "sig",
	}, ChargeRequest{SharedPaymentToken: "vt_1", Amount: 2750, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)

	assert.Equal(t, "/v1/charges", seen.URL.Path)
	assert.Equal(t, "Bearer sk_test", seen.Header.Get("Authorization"))
	assert.Equal(t, "2025-09-29", seen.Header.Get("API-Version"))
	assert.Equal(t, "en-US", seen.Header.Get("Accept-Language"))
	assert.True(t, strings.HasPrefix(seen.Header.Get("Idempotency-Key"), "charge_1700000000_"))
	assert.Len(t, seen.Header.Get("Idempotency-Key"), len("charge_1700000000_")+16)
	assert.True(t, strings.HasPrefix(seen.Header.Get("Request-Id"), "req_"))
	assert.Equal(t, "2023-11-14T22:13:20Z", seen.Header.Get("Timestamp"))
	assert.Equal(t, webhooks.SignBase64URL("sig", seenBody), seen.Header.Get("Signature"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(seenBody, &body))
	assert.Equal(t, map[string]any{"shared_payment_token": "vt_1", "amount": float64(2750), "currency": "usd"}, body)
}

func TestChargeWithoutSignatureSecretOmitsHeader(t *testing.T) {
	var (
		seen     http.Request
		seenBody []byte
	)
	ts := pspServer(t, 201, `{"id":"pi_1"}`, &seen, &seenBody)
	_, err := NewClient(time.Second).Charge(context.Background(), Credentials{URL: ts.URL, MerchantSecretKey: "sk", ChargeEndpoint: "charges"}, ChargeRequest{})
	require.NoError(t, err)
	assert.Empty(t, seen.Header.Get("Signature"))
	assert.Equal(t, "/charges", seen.URL.Path)
}

func TestChargeFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"declined", 402, `{"message":"card declined"}`, "PSP returned status 402: card declined"},
		{"no message", 500, `{}`, "PSP returned status 500: Unknown PSP error"},
		{"garbage error", 502, `<html>`, "PSP returned status 502 with invalid response"},
		{"ok but not created", 200, `{"id":"pi_1"}`, "PSP returned status 200: Unknown PSP error"},
		{"malformed success", 201, `not json`, "invalid JSON response from PSP"},
		{"null success", 201, `null`, "invalid JSON response from PSP"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := pspServer(t, tc.status, tc.body, nil, nil)
			_, err := NewClient(time.Second).Charge(context.Background(), Credentials{URL: ts.URL, MerchantSecretKey: "sk", ChargeEndpoint: "/c"}, ChargeRequest{})
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
		})
	}
}

func TestChargeRequiresCredentials(t *testing.T) {
	_, err := NewClient(time.Second).Charge(context.Background(), Credentials{MerchantSecretKey: "sk", ChargeEndpoint: "/c"}, ChargeRequest{})
	assert.EqualError(t, err, "PSP URL not configured")
	_, err = NewClient(time.Second).Charge(context.Background(), Credentials{URL: "http://x", ChargeEndpoint: "/c"}, ChargeRequest{})
	assert.EqualError(t, err, "PSP merchant secret key not configured")
	_, err = NewClient(time.Second).Charge(context.Background(), Credentials{URL: "http://x", MerchantSecretKey: "sk"}, ChargeRequest{})
	assert.EqualError(t, err, "PSP charge endpoint not configured")
}

type stubCharger struct {
	intent *PaymentIntent
	err    error
	calls  int
	last   ChargeRequest
}

func (s *stubCharger) Charge(_ context.Context, _ Credentials, in ChargeRequest) (*PaymentIntent, error) {
	s.calls++
	s.last = in
	return s.intent, s.err
}

func newRequest() *order.PaymentRequest {
	return &order.PaymentRequest{
		Hash:    "pr_1",
		Action:  order.ActionCapture,
		Payload: map[string]string{"token": "vt_1", "provider": "stripe"},
		State:   order.RequestNew,
	}
}

func TestCaptureSuccessDrivesTransitions(t *testing.T) {
	psp := &stubCharger{intent: &PaymentIntent{ID: "pi_9", Status: "succeeded", Amount: 1000, Currency: "usd", Created: 1}}
	c := &Capturer{PSP: psp, Workflow: order.NewWorkflow()}
	p := &order.Payment{Amount: 1000, CurrencyCode: "USD", State: order.PaymentCart}
	req := newRequest()

	require.NoError(t, c.Capture(context.Background(), Credentials{}, p, req))
	assert.Equal(t, order.PaymentCompleted, p.State)
	assert.Equal(t, order.RequestCompleted, req.State)
	assert.Equal(t, "pi_9", p.Details["psp_payment_intent_id"])
	assert.Equal(t, "vt_1", p.Details["vault_token"])
	assert.Equal(t, map[string]any{"payment_intent_id": "pi_9", "status": "completed"}, req.ResponseData)
	assert.Equal(t, ChargeRequest{SharedPaymentToken: "vt_1", Amount: 1000, Currency: "USD"}, psp.last)
}

func TestCaptureFailureRecordsError(t *testing.T) {
	psp := &stubCharger{err: assert.AnError}
	c := &Capturer{PSP: psp, Workflow: order.NewWorkflow()}
	p := &order.Payment{Amount: 1000, CurrencyCode: "USD", State: order.PaymentCart}
	req := newRequest()

	err := c.Capture(context.Background(), Credentials{}, p, req)
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, order.PaymentFailed, p.State)
	assert.Equal(t, order.RequestFailed, req.State)
	detail := p.Details["error"].(map[string]any)
	assert.Equal(t, "psp_error", detail["type"])
	assert.Equal(t, "charge_failed", detail["code"])
	assert.Equal(t, "vt_1", p.Details["acp_token"])
}

func TestCaptureSkipsRequestAlreadyProcessing(t *testing.T) {
	psp := &stubCharger{}
	c := &Capturer{PSP: psp, Workflow: order.NewWorkflow()}
	req := newRequest()
	req.State = order.RequestProcessing

	err := c.Capture(context.Background(), Credentials{}, &order.Payment{State: order.PaymentCart}, req)
	assert.ErrorIs(t, err, ErrRequestInFlight)
	assert.Zero(t, psp.calls)
}
