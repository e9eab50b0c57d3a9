package order

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Sequence hands out order numbers.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

type MemorySequence struct{ n atomic.Int64 }

func (s *MemorySequence) Next(context.Context) (int64, error) { return s.n.Add(1), nil }

// Processor is the in-process Mutator. It recomputes item totals, a flat
// tax rate, the shipping charge and the payment state.
type Processor struct {
	Catalog     *Catalog
	Calculators CalculatorRegistry
	Numbers     Sequence
}

func (p *Processor) SetItems(ctx context.Context, o *Order, items []ItemQuantity) ([]ItemQuantity, error) {
	var skipped []ItemQuantity
	next := nextItemID(o)
	o.Items = o.Items[:0]
	for _, in := range items {
		v, ok := p.Catalog.variants[in.Code]
		if !ok || in.Quantity <= 0 {
			skipped = append(skipped, in)
			continue
		}
		variant := v.variant
		o.Items = append(o.Items, &Item{
			ID:        next,
			Variant:   &variant,
			Quantity:  in.Quantity,
			UnitPrice: v.price,
		})
		next++
	}
	return skipped, nil
}

func (p *Processor) SetShippingAddress(_ context.Context, o *Order, a *Address) error {
	o.ShippingAddress = a
	return nil
}

func (p *Processor) SetBillingAddress(_ context.Context, o *Order, a *Address) error {
	o.BillingAddress = a
	return nil
}

func (p *Processor) AssignShippingMethod(_ context.Context, o *Order, code string) error {
	m := p.Catalog.method(code)
	if m == nil {
		return fmt.Errorf("shipping method %q not found", code)
	}
	if len(o.Shipments) == 0 {
		o.Shipments = append(o.Shipments, &Shipment{ID: 1})
	}
	cp := *m
	o.Shipments[0].Method = &cp
	return nil
}

func (p *Processor) SetCustomer(_ context.Context, o *Order, c Customer) error {
	if o.Customer != nil && o.Customer.Email == c.Email {
		if c.FirstName == "" {
			c.FirstName = o.Customer.FirstName
		}
		if c.LastName == "" {
			c.LastName = o.Customer.LastName
		}
		if c.PhoneNumber == "" {
			c.PhoneNumber = o.Customer.PhoneNumber
		}
	}
	o.Customer = &c
	return nil
}

func (p *Processor) Process(_ context.Context, o *Order) error {
	if o.State != StateCart && o.CheckoutState == CheckoutCompleted {
		p.resolvePaymentState(o)
		return nil
	}

	o.ItemsTotal = 0
	for _, it := range o.Items {
		base := it.UnitPrice * int64(it.Quantity)
		it.Adjustments = withoutType(it.Adjustments, AdjustmentTax)
		if tax := (base*p.Catalog.taxRateBps + 5000) / 10000; tax > 0 {
			it.Adjustments = append(it.Adjustments, Adjustment{Type: AdjustmentTax, Label: "Tax", Amount: tax})
		}
		if len(it.Units) != it.Quantity {
			it.Units = make([]Unit, it.Quantity)
		}
		it.Total = base + it.AdjustmentsTotalRecursively(
			AdjustmentTax, AdjustmentOrderItemPromotion, AdjustmentOrderUnitPromotion, AdjustmentOrderPromotion)
		o.ItemsTotal += it.Total
	}

	switch {
	case len(o.Items) == 0:
		o.Shipments = nil
	case len(o.Shipments) == 0:
		o.Shipments = []*Shipment{{ID: 1}}
	}

	o.Adjustments = withoutType(o.Adjustments, AdjustmentShipping)
	if s := o.FirstShipment(); s != nil && s.Method != nil {
		calc, err := p.Calculators.Calculator(s.Method.Calculator)
		if err != nil {
			return err
		}
		cost, err := calc.Calculate(o, s, s.Method.Configuration)
		if err != nil {
			return err
		}
		o.Adjustments = append(o.Adjustments, Adjustment{Type: AdjustmentShipping, Label: s.Method.Name, Amount: cost})
	}

	o.TaxTotal = o.AdjustmentsTotalRecursively(AdjustmentTax)
	o.Total = o.ItemsTotal + o.AdjustmentsTotal(
		AdjustmentShipping, AdjustmentOrderShippingPromotion, AdjustmentOrderPromotion, AdjustmentTax)
	if o.Total < 0 {
		o.Total = 0
	}
	p.resolvePaymentState(o)
	return nil
}

func (p *Processor) resolvePaymentState(o *Order) {
	if o.State == StateCart {
		o.PaymentState = PaymentStateCart
		return
	}
	var paid int64
	for _, pay := range o.Payments {
		if pay.State == PaymentCompleted {
			paid += pay.Amount
		}
	}
	switch {
	case paid > 0 && paid >= o.Total:
		o.PaymentState = PaymentStatePaid
	case paid > 0:
		o.PaymentState = PaymentStatePartiallyPaid
	default:
		o.PaymentState = PaymentStateAwaitingPayment
	}
}

func (p *Processor) AssignNumber(ctx context.Context, o *Order) error {
	if o.Number != "" {
		return nil
	}
	n, err := p.Numbers.Next(ctx)
	if err != nil {
		return err
	}
	o.Number = fmt.Sprintf("%09d", n)
	return nil
}

func nextItemID(o *Order) int64 {
	var max int64
	for _, it := range o.Items {
		if it.ID > max {
			max = it.ID
		}
	}
	return max + 1
}

func withoutType(adjs []Adjustment, t AdjustmentType) []Adjustment {
	out := adjs[:0]
	for _, a := range adjs {
		if a.Type != t {
			out = append(out, a)
		}
	}
	return out
}
