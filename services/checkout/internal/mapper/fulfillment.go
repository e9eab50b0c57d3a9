package mapper

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

// Fulfillment lists shipping options for the first shipment only. Orders
// with more shipments expose nothing about the others.
type Fulfillment struct {
	Methods     order.ShippingMethodsResolver
	Calculators order.CalculatorRegistry
	Log         logrus.FieldLogger
}

func (f Fulfillment) Options(ctx context.Context, o *order.Order) []protocol.FulfillmentOption {
	s := o.FirstShipment()
	if s == nil {
		return []protocol.FulfillmentOption{}
	}
	methods, err := f.Methods.SupportedMethods(ctx, o, s)
	if err != nil {
		f.logger().WithError(err).WithField("order_id", o.ID).Warn("shipping methods unavailable")
		return []protocol.FulfillmentOption{}
	}
	out := make([]protocol.FulfillmentOption, 0, len(methods))
	for _, m := range methods {
		cost := Money(f.cost(o, s, m))
		opt := protocol.FulfillmentOption{
			Type:     "shipping",
			ID:       MethodID(m),
			Title:    m.Name,
			Subtitle: m.Description,
			Subtotal: cost,
			Tax:      Money(0),
			Total:    cost,
		}
		if opt.Title == "" {
			opt.Title = "Unknown"
		}
		out = append(out, opt)
	}
	return out
}

// Method returns the supported method behind option id, or nil when the
// first shipment cannot use it.
func (f Fulfillment) Method(ctx context.Context, o *order.Order, id string) *order.ShippingMethod {
	s := o.FirstShipment()
	if s == nil {
		return nil
	}
	methods, err := f.Methods.SupportedMethods(ctx, o, s)
	if err != nil {
		return nil
	}
	for _, m := range methods {
		if MethodID(m) == id {
			return m
		}
	}
	return nil
}

// cost never touches s.Method; a failing calculator prices the option at zero.
func (f Fulfillment) cost(o *order.Order, s *order.Shipment, m *order.ShippingMethod) int64 {
	calc, err := f.Calculators.Calculator(m.Calculator)
	if err != nil {
		f.logger().WithError(err).WithField("method", m.Code).Warn("no calculator for shipping method, pricing at zero")
		return 0
	}
	amount, err := calc.Calculate(o, s, m.Configuration)
	if err != nil {
		f.logger().WithError(err).WithField("method", m.Code).Warn("shipping calculation failed, pricing at zero")
		return 0
	}
	return amount
}

func (f Fulfillment) logger() logrus.FieldLogger {
	if f.Log == nil {
		return logrus.StandardLogger()
	}
	return f.Log
}

// SelectedOptionID is the code of the first shipment's method, or "".
func SelectedOptionID(o *order.Order) string {
	s := o.FirstShipment()
	if s == nil || s.Method == nil {
		return ""
	}
	return MethodID(s.Method)
}

func MethodID(m *order.ShippingMethod) string {
	if m.Code != "" {
		return m.Code
	}
	return fmt.Sprintf("method_%d", m.ID)
}

// Money renders minor units as a fixed point string, 1550 -> "15.50".
func Money(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
