// Package payment charges delegated payment tokens against the PSP.
package payment

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/accordsai/checkoutlane/pkg/httpx"
	"github.com/accordsai/checkoutlane/pkg/webhooks"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

const DefaultTimeout = 30 * time.Second

type Credentials struct {
	URL               string
	MerchantSecretKey string
	ChargeEndpoint    string
	SignatureSecret   string
}

func (c Credentials) validate() error {
	switch {
	case strings.TrimSpace(c.URL) == "":
		return errors.New("PSP URL not configured")
	case strings.TrimSpace(c.MerchantSecretKey) == "":
		return errors.New("PSP merchant secret key not configured")
	case strings.TrimSpace(c.ChargeEndpoint) == "":
		return errors.New("PSP charge endpoint not configured")
	}
	return nil
}

type ChargeRequest struct {
	SharedPaymentToken string `json:"shared_payment_token"`
	Amount             int64  `json:"amount"`
	Currency           string `json:"currency"`
}

type PaymentIntent struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Created  int64  `json:"created"`
}

type Client struct {
	HTTP      *http.Client
	UserAgent string
	Now       func() time.Time
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		UserAgent: "checkoutlane-acp/1.0",
		Now:       time.Now,
	}
}

// Charge posts one charge. Anything but a 201 with a JSON object is an error.
func (c *Client) Charge(ctx context.Context, creds Credentials, in ChargeRequest) (*PaymentIntent, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	in.Currency = strings.ToLower(in.Currency)
	body, err := json.Marshal(in)
	if err != nil {
		return nil, errors.Wrap(err, "encode charge")
	}
	endpoint := strings.TrimRight(creds.URL, "/") + "/" + strings.TrimLeft(creds.ChargeEndpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build charge request")
	}
	now := c.Now().UTC()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.MerchantSecretKey)
	req.Header.Set("API-Version", protocol.APIVersion)
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Idempotency-Key", chargeKey(now))
	req.Header.Set("Request-Id", httpx.NewRequestID())
	req.Header.Set(webhooks.TimestampHeader, now.Format(time.RFC3339))
	if creds.SignatureSecret != "" {
		req.Header.Set(webhooks.SignatureHeader, webhooks.SignBase64URL(creds.SignatureSecret, body))
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "PSP request failed")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read PSP response")
	}

	if resp.StatusCode != http.StatusCreated {
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &e) != nil {
			return nil, fmt.Errorf("PSP returned status %d with invalid response", resp.StatusCode)
		}
		if e.Message == "" {
			e.Message = "Unknown PSP error"
		}
		return nil, fmt.Errorf("PSP returned status %d: %s", resp.StatusCode, e.Message)
	}

	var intent PaymentIntent
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &intent) != nil {
		return nil, errors.New("invalid JSON response from PSP")
	}
	return &intent, nil
}

func chargeKey(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("charge_%d_%s", now.Unix(), hex.EncodeToString(id[:8]))
}
