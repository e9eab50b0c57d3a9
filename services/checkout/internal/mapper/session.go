package mapper

import (
	"context"
	"fmt"
	"strings"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

// Serializer renders a full checkout session response.
type Serializer struct {
	Fulfillment Fulfillment
	// PermalinkBase returns the storefront base URL for a channel.
	PermalinkBase func(channelCode string) string
}

func (s Serializer) Session(ctx context.Context, protocolID string, st protocol.Status, o *order.Order) protocol.CheckoutSession {
	out := protocol.CheckoutSession{
		ID:                  protocolID,
		Status:              st,
		Currency:            strings.ToLower(o.CurrencyCode),
		LineItems:           LineItems(o),
		Totals:              Totals(o),
		FulfillmentOptions:  s.Fulfillment.Options(ctx, o),
		FulfillmentOptionID: SelectedOptionID(o),
		FulfillmentAddress:  EncodeAddress(o.ShippingAddress),
		Buyer:               Buyer(o),
		PaymentProvider: protocol.PaymentProvider{
			Provider:                "stripe",
			SupportedPaymentMethods: []string{"card"},
		},
		Messages: []protocol.Message{},
		Links:    []protocol.Link{},
	}
	if st == protocol.StatusCompleted {
		if o.Number == "" {
			panic(fmt.Sprintf("completed checkout session %s has an order without a number", protocolID))
		}
		out.Order = &protocol.Order{
			ID:                o.Number,
			CheckoutSessionID: protocolID,
			PermalinkURL:      s.Permalink(o),
		}
	}
	return out
}

func (s Serializer) Permalink(o *order.Order) string {
	base := ""
	if s.PermalinkBase != nil {
		base = strings.TrimRight(s.PermalinkBase(o.ChannelCode), "/")
	}
	return base + "/order/" + o.TokenValue
}
