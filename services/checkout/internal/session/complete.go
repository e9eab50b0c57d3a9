package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/accordsai/checkoutlane/services/checkout/internal/config"
	"github.com/accordsai/checkoutlane/services/checkout/internal/notify"
	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/payment"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
	"github.com/accordsai/checkoutlane/services/checkout/internal/status"
)

type CompleteInput = protocol.CompleteRequest

func parsePaymentData(raw json.RawMessage) (*protocol.PaymentData, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, protocol.MissingParameter("payment_data is required", "$.payment_data")
	}
	if raw[0] != '{' {
		return nil, protocol.InvalidParameter("payment_data must be an object", "$.payment_data")
	}
	var pd protocol.PaymentData
	if err := json.Unmarshal(raw, &pd); err != nil {
		return nil, protocol.InvalidParameter("payment_data must be an object", "$.payment_data")
	}
	if !pd.Token.Set || pd.Token.Value == "" {
		return nil, protocol.MissingParameter("payment_data.token is required", "$.payment_data.token")
	}
	if !pd.Provider.Set || pd.Provider.Value == "" {
		return nil, protocol.MissingParameter("payment_data.provider is required", "$.payment_data.provider")
	}
	return &pd, nil
}

// Complete charges the delegated token and finalizes the order. A failed
// charge leaves the checkout where it was and only records the failure on
// the payment.
func (s *Service) Complete(ctx context.Context, ch *config.Channel, id string, in CompleteInput) (*Result, error) {
	pd, err := parsePaymentData(in.PaymentData)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	sess, o, err := s.load(ctx, ch, id)
	if err != nil {
		return nil, err
	}
	if st := status.Effective(sess.Status, o); st.Terminal() {
		return nil, protocol.MethodNotAllowed(fmt.Sprintf("Cannot complete session with status %q", st))
	}
	gw := ch.Gateway
	if gw.PaymentMethodCode == "" {
		return nil, protocol.InvalidRequest("payment_method_not_configured", "No ACP payment method is configured for this channel", "")
	}

	if err := s.applyBuyer(ctx, o, in.Buyer); err != nil {
		return nil, err
	}
	if err := s.applyBillingAddress(ctx, o, pd.BillingAddress); err != nil {
		return nil, err
	}
	if err := s.Mutator.Process(ctx, o); err != nil {
		return nil, s.mapErr("process order", err)
	}

	before := o.CheckoutState
	if s.Workflow.Can(o, order.GraphCheckout, order.TransitionSelectPayment) {
		_ = s.Workflow.Apply(o, order.GraphCheckout, order.TransitionSelectPayment)
	}
	if !s.Workflow.Can(o, order.GraphCheckout, order.TransitionComplete) {
		return nil, protocol.InvalidRequest("session_not_ready",
			fmt.Sprintf("Checkout session is not ready for payment (status %q)", status.Resolve(o)), "")
	}

	log := s.Log.WithField("checkout_session_id", id)
	if p := settledPayment(o); p != nil {
		// An earlier attempt captured the money but did not finish the order.
		log.WithField("payment_id", p.ID).Warn("reusing captured payment")
	} else {
		p := paymentFor(o, gw.PaymentMethodCode)
		req := captureRequest(o, p, pd)
		log = log.WithField("payment_request", req.Hash)

		if err := s.Capturer.Capture(ctx, credentials(gw), p, req); err != nil {
			o.CheckoutState = before
			if serr := s.Orders.Save(ctx, o); serr != nil {
				log.WithError(serr).Error("failed to record payment failure on order")
			}
			return nil, protocol.PaymentFailed("Payment failed: " + err.Error())
		}
		if p.State != order.PaymentCompleted {
			o.CheckoutState = before
			if serr := s.Orders.Save(ctx, o); serr != nil {
				log.WithError(serr).Error("failed to record payment state on order")
			}
			return nil, protocol.PaymentFailed(fmt.Sprintf("Payment failed: payment is %q after capture", p.State))
		}
		// The capture is stored before the order is finalized so a retried
		// complete finds it instead of charging again.
		if err := s.Orders.Save(ctx, o); err != nil {
			log.WithError(err).WithField("payment_details", p.Details).Error("payment captured but could not be recorded")
			return nil, s.mapErr("save order", err)
		}
	}

	if err := s.Workflow.Apply(o, order.GraphCheckout, order.TransitionComplete); err != nil {
		return nil, s.mapErr("complete checkout", err)
	}
	if err := s.Mutator.Process(ctx, o); err != nil {
		return nil, s.mapErr("process order", err)
	}
	if err := s.Mutator.AssignNumber(ctx, o); err != nil {
		return nil, s.mapErr("assign order number", err)
	}
	if err := s.Orders.Save(ctx, o); err != nil {
		log.WithError(err).Error("payment recorded but order could not be completed")
		return nil, s.mapErr("save order", err)
	}

	sess.Status = protocol.StatusCompleted
	if err := s.Sessions.Update(ctx, sess); err != nil {
		return nil, s.mapErr("save checkout session", err)
	}
	log.WithField("order_number", o.Number).Info("checkout session completed")

	s.Events.OrderCompleted(ctx, notify.OrderCompleted{
		ProtocolID:   sess.ProtocolID,
		ChannelCode:  sess.ChannelCode,
		PermalinkURL: s.Serializer.Permalink(o),
	})
	return &Result{Session: s.render(ctx, sess, o)}, nil
}

// settledPayment is a completed payment that still covers the order total.
func settledPayment(o *order.Order) *order.Payment {
	p := o.LastPayment(order.PaymentCompleted)
	if p == nil || p.Amount != o.Total || p.CurrencyCode != o.CurrencyCode {
		return nil
	}
	return p
}

// paymentFor reuses the open payment or starts a new one for the order total.
func paymentFor(o *order.Order, methodCode string) *order.Payment {
	p := o.LastPayment(order.PaymentCart, order.PaymentNew)
	if p == nil {
		var next int64
		for _, existing := range o.Payments {
			if existing.ID > next {
				next = existing.ID
			}
		}
		p = &order.Payment{ID: next + 1, State: order.PaymentCart}
		o.Payments = append(o.Payments, p)
	}
	p.MethodCode = methodCode
	p.Amount = o.Total
	p.CurrencyCode = o.CurrencyCode
	return p
}

// captureRequest reuses a request that never started so a retried complete
// does not open a second one. A request still processing is handed back as
// is and the capturer refuses it.
func captureRequest(o *order.Order, p *order.Payment, pd *protocol.PaymentData) *order.PaymentRequest {
	payload := map[string]string{"token": pd.Token.Value, "provider": pd.Provider.Value}
	if r := o.ActiveRequest(); r != nil {
		if r.State == order.RequestNew {
			r.PaymentID = p.ID
			r.MethodCode = p.MethodCode
			r.Payload = payload
		}
		return r
	}
	r := &order.PaymentRequest{
		Hash:       uuid.NewString(),
		PaymentID:  p.ID,
		MethodCode: p.MethodCode,
		Action:     order.ActionCapture,
		Payload:    payload,
		State:      order.RequestNew,
	}
	o.PaymentRequests = append(o.PaymentRequests, r)
	return r
}

func credentials(gw config.Gateway) payment.Credentials {
	return payment.Credentials{
		URL:               gw.PSPURL,
		MerchantSecretKey: gw.PSPMerchantSecretKey,
		ChargeEndpoint:    gw.PSPChargeEndpoint,
		SignatureSecret:   gw.SignatureSecret,
	}
}
