package mapper

import (
	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

// Buyer is only emitted once email and both names are known.
func Buyer(o *order.Order) *protocol.Buyer {
	c := o.Customer
	if c == nil || c.Email == "" || c.FirstName == "" || c.LastName == "" {
		return nil
	}
	return &protocol.Buyer{
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		PhoneNumber: c.PhoneNumber,
	}
}
