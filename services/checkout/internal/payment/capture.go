package payment

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
)

var ErrRequestInFlight = errors.New("payment request is already being processed")

type Charger interface {
	Charge(ctx context.Context, creds Credentials, in ChargeRequest) (*PaymentIntent, error)
}

// Capturer redeems a delegated token for one payment and drives the payment
// and its request through their state graphs.
type Capturer struct {
	PSP      Charger
	Workflow order.StateMachine
	Log      logrus.FieldLogger
}

// Capture charges p.Amount. On failure the error is recorded on the payment,
// both payment and request move to failed, and the error is returned.
func (c *Capturer) Capture(ctx context.Context, creds Credentials, p *order.Payment, req *order.PaymentRequest) error {
	if req.State == order.RequestProcessing {
		return ErrRequestInFlight
	}
	if err := c.Workflow.Apply(req, order.GraphPaymentRequest, order.TransitionProcess); err != nil {
		return err
	}

	token := req.Payload["token"]
	intent, err := c.PSP.Charge(ctx, creds, ChargeRequest{
		SharedPaymentToken: token,
		Amount:             p.Amount,
		Currency:           p.CurrencyCode,
	})
	if err != nil {
		c.fail(p, req, token, err)
		return err
	}

	p.Details = map[string]any{
		"psp_payment_intent_id": intent.ID,
		"status":                intent.Status,
		"amount":                intent.Amount,
		"currency":              intent.Currency,
		"created":               intent.Created,
		"vault_token":           token,
	}
	for _, tr := range []string{order.TransitionCreate, order.TransitionProcess, order.TransitionComplete} {
		if c.Workflow.Can(p, order.GraphPayment, tr) {
			_ = c.Workflow.Apply(p, order.GraphPayment, tr)
		}
	}
	req.ResponseData = map[string]any{"payment_intent_id": intent.ID, "status": "completed"}
	if err := c.Workflow.Apply(req, order.GraphPaymentRequest, order.TransitionComplete); err != nil {
		return err
	}
	c.logger().WithFields(logrus.Fields{
		"payment_request": req.Hash,
		"payment_intent":  intent.ID,
		"amount":          p.Amount,
	}).Info("payment captured")
	return nil
}

func (c *Capturer) fail(p *order.Payment, req *order.PaymentRequest, token string, cause error) {
	p.Details = map[string]any{
		"error": map[string]any{
			"type":    "psp_error",
			"code":    "charge_failed",
			"message": cause.Error(),
		},
		"acp_token": token,
	}
	if c.Workflow.Can(p, order.GraphPayment, order.TransitionCreate) {
		_ = c.Workflow.Apply(p, order.GraphPayment, order.TransitionCreate)
	}
	if c.Workflow.Can(p, order.GraphPayment, order.TransitionFail) {
		_ = c.Workflow.Apply(p, order.GraphPayment, order.TransitionFail)
	}
	if c.Workflow.Can(req, order.GraphPaymentRequest, order.TransitionFail) {
		_ = c.Workflow.Apply(req, order.GraphPaymentRequest, order.TransitionFail)
	}
	c.logger().WithError(cause).WithField("payment_request", req.Hash).Warn("payment capture failed")
}

func (c *Capturer) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}
