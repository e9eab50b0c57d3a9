// Package status derives the protocol status of a checkout session from
// its order.
package status

import (
	"strings"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

// Resolve is pure: the same order always yields the same status.
func Resolve(o *order.Order) protocol.Status {
	switch {
	case o.State == order.StateCancelled:
		return protocol.StatusCanceled
	case o.State == order.StateNew && o.PaymentState == order.PaymentStatePaid:
		return protocol.StatusCompleted
	case o.CheckoutState == order.CheckoutCompleted:
		return protocol.StatusInProgress
	case o.State == order.StateCart:
		if readyForPayment(o) {
			return protocol.StatusReadyForPayment
		}
		return protocol.StatusNotReadyForPayment
	default:
		return protocol.StatusInProgress
	}
}

// Effective returns the pinned status when it is terminal and derives it
// from the order otherwise.
func Effective(pinned protocol.Status, o *order.Order) protocol.Status {
	if pinned.Terminal() {
		return pinned
	}
	return Resolve(o)
}

func readyForPayment(o *order.Order) bool {
	a := o.ShippingAddress
	if a == nil || strings.TrimSpace(a.Street) == "" || strings.TrimSpace(a.City) == "" {
		return false
	}
	if len(o.Items) == 0 {
		return false
	}
	for _, s := range o.Shipments {
		if s.Method == nil {
			return false
		}
	}
	return true
}
