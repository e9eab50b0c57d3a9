// Package acpclient is the agent side of the checkout session API.
package acpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/accordsai/checkoutlane/pkg/httpx"
	"github.com/accordsai/checkoutlane/pkg/webhooks"
)

const DefaultAPIVersion = "2025-09-29"

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Bearer     string
	APIVersion string
	Now        func() time.Time

	// SignatureSecret signs every POST body when set.
	SignatureSecret string
}

func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Bearer:     bearer,
		APIVersion: DefaultAPIVersion,
		Now:        time.Now,
	}
}

type Item struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type Address struct {
	Name       string `json:"name"`
	LineOne    string `json:"line_one"`
	LineTwo    string `json:"line_two,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

type Buyer struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type CreateRequest struct {
	Items              []Item   `json:"items"`
	Buyer              *Buyer   `json:"buyer,omitempty"`
	FulfillmentAddress *Address `json:"fulfillment_address,omitempty"`
}

type UpdateRequest struct {
	Items               []Item   `json:"items,omitempty"`
	Buyer               *Buyer   `json:"buyer,omitempty"`
	FulfillmentAddress  *Address `json:"fulfillment_address,omitempty"`
	FulfillmentOptionID string   `json:"fulfillment_option_id,omitempty"`
}

type PaymentData struct {
	Token          string   `json:"token"`
	Provider       string   `json:"provider"`
	BillingAddress *Address `json:"billing_address,omitempty"`
}

type CompleteRequest struct {
	PaymentData PaymentData `json:"payment_data"`
	Buyer       *Buyer      `json:"buyer,omitempty"`
}

type LineItem struct {
	ID         string `json:"id"`
	Item       Item   `json:"item"`
	BaseAmount int64  `json:"base_amount"`
	Discount   int64  `json:"discount"`
	Subtotal   int64  `json:"subtotal"`
	Tax        int64  `json:"tax"`
	Total      int64  `json:"total"`
}

type Total struct {
	Type        string `json:"type"`
	DisplayText string `json:"display_text"`
	Amount      int64  `json:"amount"`
}

type FulfillmentOption struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

type Order struct {
	ID                string `json:"id"`
	CheckoutSessionID string `json:"checkout_session_id"`
	PermalinkURL      string `json:"permalink_url"`
}

type Session struct {
	ID                  string              `json:"id"`
	Status              string              `json:"status"`
	Currency            string              `json:"currency"`
	LineItems           []LineItem          `json:"line_items"`
	Totals              []Total             `json:"totals"`
	FulfillmentOptions  []FulfillmentOption `json:"fulfillment_options"`
	FulfillmentOptionID string              `json:"fulfillment_option_id,omitempty"`
	FulfillmentAddress  *Address            `json:"fulfillment_address,omitempty"`
	Buyer               *Buyer              `json:"buyer,omitempty"`
	Order               *Order              `json:"order,omitempty"`
}

// APIError is a non-2xx answer carrying the protocol error object.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Param      string `json:"param,omitempty"`
}

func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("http %d: %s/%s: %s (%s)", e.StatusCode, e.Type, e.Code, e.Message, e.Param)
	}
	return fmt.Sprintf("http %d: %s/%s: %s", e.StatusCode, e.Type, e.Code, e.Message)
}

// Create opens a session. A non-empty idempotencyKey makes retries of the
// same body safe.
func (c *Client) Create(ctx context.Context, in CreateRequest, idempotencyKey string) (*Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/checkout_sessions", in)
	if err != nil {
		return nil, err
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return doJSON[Session](c, req)
}

func (c *Client) Retrieve(ctx context.Context, id string) (*Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/checkout_sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return doJSON[Session](c, req)
}

func (c *Client) Update(ctx context.Context, id string, in UpdateRequest) (*Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/checkout_sessions/"+url.PathEscape(id), in)
	if err != nil {
		return nil, err
	}
	return doJSON[Session](c, req)
}

func (c *Client) Complete(ctx context.Context, id string, in CompleteRequest) (*Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/checkout_sessions/"+url.PathEscape(id)+"/complete", in)
	if err != nil {
		return nil, err
	}
	return doJSON[Session](c, req)
}

func (c *Client) Cancel(ctx context.Context, id string) (*Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/checkout_sessions/"+url.PathEscape(id)+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	return doJSON[Session](c, req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		body = b
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	version := c.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	req.Header.Set("API-Version", version)
	req.Header.Set("Request-Id", httpx.NewRequestID())
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.SignatureSecret != "" {
		req.Header.Set(webhooks.SignatureHeader, webhooks.SignBase64URL(c.SignatureSecret, body))
		req.Header.Set(webhooks.TimestampHeader, c.now().UTC().Format(time.RFC3339))
	}
	return req, nil
}

func (c *Client) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func doJSON[T any](c *Client, req *http.Request) (*T, error) {
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Type, apiErr.Code, apiErr.Message = "api_error", "unexpected_response", http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &out, nil
}
