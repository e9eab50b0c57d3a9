// Package notify delivers signed order webhooks to the agent.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/accordsai/checkoutlane/pkg/webhooks"
)

const DefaultTimeout = 10 * time.Second

// OrderCompleted is published once a checkout session completes.
type OrderCompleted struct {
	ProtocolID   string
	ChannelCode  string
	PermalinkURL string
}

type Target struct {
	URL    string
	Secret string
}

// Targets resolves a channel's webhook target; ok=false means none.
type Targets interface {
	WebhookTarget(channelCode string) (Target, bool)
}

type Payload struct {
	Type string      `json:"type"`
	Data PayloadData `json:"data"`
}

type PayloadData struct {
	Type              string `json:"type"`
	CheckoutSessionID string `json:"checkout_session_id"`
	PermalinkURL      string `json:"permalink_url"`
	Status            string `json:"status"`
	Refunds           []any  `json:"refunds"`
}

// Notifier posts webhooks once, with no retry or queue. A delivery that
// fails is logged and lost.
type Notifier struct {
	Targets Targets
	HTTP    *http.Client
	Log     logrus.FieldLogger
	Now     func() time.Time
}

func New(targets Targets, timeout time.Duration, log logrus.FieldLogger) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Notifier{Targets: targets, HTTP: &http.Client{Timeout: timeout}, Log: log, Now: time.Now}
}

// OrderCompleted delivers in the background and returns immediately. The
// delivery outlives the caller's request context.
func (n *Notifier) OrderCompleted(ctx context.Context, ev OrderCompleted) {
	go func() {
		_ = n.Deliver(context.WithoutCancel(ctx), ev)
	}()
}

// Deliver sends the webhook synchronously. Errors are logged before being
// returned; callers on the request path ignore them.
func (n *Notifier) Deliver(ctx context.Context, ev OrderCompleted) error {
	log := n.Log.WithFields(logrus.Fields{"checkout_session_id": ev.ProtocolID, "channel": ev.ChannelCode})
	target, ok := n.Targets.WebhookTarget(ev.ChannelCode)
	if !ok || target.URL == "" {
		log.Debug("no webhook url configured, skipping order notification")
		return nil
	}
	if err := n.send(ctx, target, ev); err != nil {
		log.WithError(err).WithField("webhook_url", target.URL).Error("order webhook delivery failed")
		return err
	}
	log.Info("order webhook delivered")
	return nil
}

func (n *Notifier) send(ctx context.Context, target Target, ev OrderCompleted) error {
	if target.Secret == "" {
		return errors.New("webhook secret not configured")
	}
	body, err := json.Marshal(Payload{
		Type: "order_create",
		Data: PayloadData{
			Type:              "order",
			CheckoutSessionID: ev.ProtocolID,
			PermalinkURL:      ev.PermalinkURL,
			Status:            "created",
			Refunds:           []any{},
		},
	})
	if err != nil {
		return errors.Wrap(err, "encode webhook")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhooks.MerchantSignatureHeader, webhooks.SignHex(target.Secret, body))
	req.Header.Set("Request-Id", "whk_"+uuid.NewString())
	req.Header.Set(webhooks.TimestampHeader, n.Now().UTC().Format(time.RFC3339))

	resp, err := n.HTTP.Do(req)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}
