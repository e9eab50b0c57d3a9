package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

func cartOrder() *order.Order {
	return &order.Order{
		State:           order.StateCart,
		CheckoutState:   order.CheckoutAddressed,
		PaymentState:    order.PaymentStateCart,
		Items:           []*order.Item{{ID: 1, Quantity: 1}},
		ShippingAddress: &order.Address{Street: "1 Main St", City: "Springfield"},
		Shipments:       []*order.Shipment{{ID: 1, Method: &order.ShippingMethod{Code: "ups"}}},
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(o *order.Order)
		want   protocol.Status
	}{
		{"ready", func(o *order.Order) {}, protocol.StatusReadyForPayment},
		{"cancelled wins", func(o *order.Order) { o.State = order.StateCancelled; o.PaymentState = order.PaymentStatePaid }, protocol.StatusCanceled},
		{"finalized and paid", func(o *order.Order) { o.State = order.StateNew; o.PaymentState = order.PaymentStatePaid }, protocol.StatusCompleted},
		{"checkout completed awaiting payment", func(o *order.Order) {
			o.CheckoutState = order.CheckoutCompleted
			o.State = order.StateNew
			o.PaymentState = order.PaymentStateAwaitingPayment
		}, protocol.StatusInProgress},
		{"finalized unpaid fallback", func(o *order.Order) { o.State = order.StateNew; o.PaymentState = order.PaymentStateAwaitingPayment }, protocol.StatusInProgress},
		{"no address", func(o *order.Order) { o.ShippingAddress = nil }, protocol.StatusNotReadyForPayment},
		{"blank street", func(o *order.Order) { o.ShippingAddress.Street = "  " }, protocol.StatusNotReadyForPayment},
		{"blank city", func(o *order.Order) { o.ShippingAddress.City = "" }, protocol.StatusNotReadyForPayment},
		{"no items", func(o *order.Order) { o.Items = nil }, protocol.StatusNotReadyForPayment},
		{"shipment without method", func(o *order.Order) { o.Shipments[0].Method = nil }, protocol.StatusNotReadyForPayment},
		{"no shipments at all", func(o *order.Order) { o.Shipments = nil }, protocol.StatusReadyForPayment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := cartOrder()
			tc.mutate(o)
			assert.Equal(t, tc.want, Resolve(o))
		})
	}
}

func TestResolveIsStable(t *testing.T) {
	o := cartOrder()
	first := Resolve(o)
	assert.Equal(t, first, Resolve(o))
	assert.Equal(t, cartOrder(), o)
}

func TestEffectiveKeepsPinnedStatus(t *testing.T) {
	o := cartOrder()
	o.State = order.StateNew
	o.PaymentState = order.PaymentStateAwaitingPayment
	assert.Equal(t, protocol.StatusCompleted, Effective(protocol.StatusCompleted, o))
	assert.Equal(t, protocol.StatusCanceled, Effective(protocol.StatusCanceled, cartOrder()))
	assert.Equal(t, protocol.StatusReadyForPayment, Effective("", cartOrder()))
	assert.Equal(t, protocol.StatusReadyForPayment, Effective(protocol.StatusInProgress, cartOrder()))
}
