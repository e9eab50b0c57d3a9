package session

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

func (s *Service) applyItems(ctx context.Context, o *order.Order, items []protocol.ItemInput) error {
	in := make([]order.ItemQuantity, 0, len(items))
	for _, it := range items {
		in = append(in, order.ItemQuantity{Code: it.ID, Quantity: it.Quantity})
	}
	skipped, err := s.Mutator.SetItems(ctx, o, in)
	if err != nil {
		return errors.Wrap(err, "set items")
	}
	for _, it := range skipped {
		s.Log.WithFields(logrus.Fields{"order_id": o.ID, "item": it.Code, "quantity": it.Quantity}).
			Warn("skipping unknown item or non-positive quantity")
	}
	return nil
}

// applyFulfillmentAddress writes the address as both shipping and billing
// address. Each incoming address replaces the stored one as a whole.
func (s *Service) applyFulfillmentAddress(ctx context.Context, o *order.Order, in *protocol.AddressInput) error {
	if in == nil {
		return nil
	}
	a := &order.Address{}
	s.Addresses.Decode(ctx, in, a)
	if err := s.Mutator.SetShippingAddress(ctx, o, a); err != nil {
		return errors.Wrap(err, "set shipping address")
	}
	if err := s.Mutator.SetBillingAddress(ctx, o, a.Clone()); err != nil {
		return errors.Wrap(err, "set billing address")
	}
	return nil
}

// applyBuyer needs an email; without one the buyer block is ignored.
func (s *Service) applyBuyer(ctx context.Context, o *order.Order, in *protocol.BuyerInput) error {
	if in == nil || !in.Email.Set || in.Email.Value == "" {
		return nil
	}
	c := order.Customer{
		Email:       in.Email.Value,
		FirstName:   in.FirstName.Value,
		LastName:    in.LastName.Value,
		PhoneNumber: in.PhoneNumber.Value,
	}
	if err := s.Mutator.SetCustomer(ctx, o, c); err != nil {
		return errors.Wrap(err, "set customer")
	}
	return s.applyBillingAddress(ctx, o, in.BillingAddress)
}

func (s *Service) applyBillingAddress(ctx context.Context, o *order.Order, in *protocol.AddressInput) error {
	if in == nil {
		return nil
	}
	a := &order.Address{}
	s.Addresses.Decode(ctx, in, a)
	return errors.Wrap(s.Mutator.SetBillingAddress(ctx, o, a), "set billing address")
}

// advanceCheckout moves the checkout graph forward when the order allows:
// an address means addressed, a chosen method means shipping selected.
func (s *Service) advanceCheckout(o *order.Order) {
	if o.ShippingAddress != nil && s.Workflow.Can(o, order.GraphCheckout, order.TransitionAddress) {
		_ = s.Workflow.Apply(o, order.GraphCheckout, order.TransitionAddress)
	}
	for _, sh := range o.Shipments {
		if sh.Method == nil {
			continue
		}
		if s.Workflow.Can(o, order.GraphCheckout, order.TransitionSelectShipping) {
			_ = s.Workflow.Apply(o, order.GraphCheckout, order.TransitionSelectShipping)
		}
		break
	}
}
