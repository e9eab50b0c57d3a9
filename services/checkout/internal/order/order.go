// Package order is the order aggregate the checkout engine drives, the
// collaborator contracts it is consumed through, and an in-process
// implementation of those contracts.
package order

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("order not found")
	ErrConflict = errors.New("order was modified concurrently")
)

const (
	StateCart      = "cart"
	StateNew       = "new"
	StateCancelled = "cancelled"
	StateFulfilled = "fulfilled"

	CheckoutCart             = "cart"
	CheckoutAddressed        = "addressed"
	CheckoutShippingSelected = "shipping_selected"
	CheckoutPaymentSelected  = "payment_selected"
	CheckoutCompleted        = "completed"

	PaymentStateCart            = "cart"
	PaymentStateAwaitingPayment = "awaiting_payment"
	PaymentStatePartiallyPaid   = "partially_paid"
	PaymentStatePaid            = "paid"
)

type AdjustmentType string

const (
	AdjustmentTax                    AdjustmentType = "tax"
	AdjustmentShipping               AdjustmentType = "shipping"
	AdjustmentOrderPromotion         AdjustmentType = "order_promotion"
	AdjustmentOrderItemPromotion     AdjustmentType = "order_item_promotion"
	AdjustmentOrderUnitPromotion     AdjustmentType = "order_unit_promotion"
	AdjustmentOrderShippingPromotion AdjustmentType = "order_shipping_promotion"
)

type Adjustment struct {
	Type   AdjustmentType `json:"type"`
	Label  string         `json:"label,omitempty"`
	Amount int64          `json:"amount"`
}

type Variant struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

type Unit struct {
	Adjustments []Adjustment `json:"adjustments,omitempty"`
}

type Item struct {
	ID          int64        `json:"id"`
	Variant     *Variant     `json:"variant,omitempty"`
	Quantity    int          `json:"quantity"`
	UnitPrice   int64        `json:"unit_price"`
	Total       int64        `json:"total"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`
	Units       []Unit       `json:"units,omitempty"`
}

type ShippingMethod struct {
	ID            int64            `json:"id"`
	Code          string           `json:"code"`
	Name          string           `json:"name,omitempty"`
	Description   string           `json:"description,omitempty"`
	Calculator    string           `json:"calculator"`
	Configuration map[string]int64 `json:"configuration,omitempty"`
	Countries     []string         `json:"countries,omitempty"`
}

type Shipment struct {
	ID     int64           `json:"id"`
	Method *ShippingMethod `json:"method,omitempty"`
}

type Address struct {
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Street       string `json:"street,omitempty"`
	City         string `json:"city,omitempty"`
	Postcode     string `json:"postcode,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	ProvinceCode string `json:"province_code,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
}

func (a *Address) Clone() *Address {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

type Customer struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

const (
	PaymentCart       = "cart"
	PaymentNew        = "new"
	PaymentProcessing = "processing"
	PaymentCompleted  = "completed"
	PaymentFailed     = "failed"
)

type Payment struct {
	ID           int64          `json:"id"`
	MethodCode   string         `json:"method_code,omitempty"`
	Amount       int64          `json:"amount"`
	CurrencyCode string         `json:"currency_code"`
	State        string         `json:"state"`
	Details      map[string]any `json:"details,omitempty"`
}

const (
	RequestNew        = "new"
	RequestProcessing = "processing"
	RequestCompleted  = "completed"
	RequestFailed     = "failed"

	ActionCapture = "capture"
)

// PaymentRequest is one capture attempt against a payment.
type PaymentRequest struct {
	Hash         string            `json:"hash"`
	PaymentID    int64             `json:"payment_id"`
	MethodCode   string            `json:"method_code"`
	Action       string            `json:"action"`
	Payload      map[string]string `json:"payload"`
	ResponseData map[string]any    `json:"response_data,omitempty"`
	State        string            `json:"state"`
}

type Order struct {
	ID              string            `json:"id"`
	Number          string            `json:"number,omitempty"`
	TokenValue      string            `json:"token_value"`
	ChannelCode     string            `json:"channel_code"`
	CurrencyCode    string            `json:"currency_code"`
	LocaleCode      string            `json:"locale_code,omitempty"`
	State           string            `json:"state"`
	CheckoutState   string            `json:"checkout_state"`
	PaymentState    string            `json:"payment_state"`
	Items           []*Item           `json:"items"`
	Shipments       []*Shipment       `json:"shipments"`
	ShippingAddress *Address          `json:"shipping_address,omitempty"`
	BillingAddress  *Address          `json:"billing_address,omitempty"`
	Customer        *Customer         `json:"customer,omitempty"`
	Adjustments     []Adjustment      `json:"adjustments,omitempty"`
	Payments        []*Payment        `json:"payments,omitempty"`
	PaymentRequests []*PaymentRequest `json:"payment_requests,omitempty"`
	ItemsTotal      int64             `json:"items_total"`
	TaxTotal        int64             `json:"tax_total"`
	Total           int64             `json:"total"`
	Version         int64             `json:"-"`
}

// AdjustmentsTotal sums order-level adjustments of the given types.
func (o *Order) AdjustmentsTotal(types ...AdjustmentType) int64 {
	return sumAdjustments(o.Adjustments, types)
}

// AdjustmentsTotalRecursively also includes item and unit adjustments.
func (o *Order) AdjustmentsTotalRecursively(types ...AdjustmentType) int64 {
	total := sumAdjustments(o.Adjustments, types)
	for _, it := range o.Items {
		total += it.AdjustmentsTotalRecursively(types...)
	}
	return total
}

func (o *Order) FirstShipment() *Shipment {
	if len(o.Shipments) == 0 {
		return nil
	}
	return o.Shipments[0]
}

// LastPayment returns the most recent payment in one of the given states,
// or the most recent payment at all when no state is given.
func (o *Order) LastPayment(states ...string) *Payment {
	for i := len(o.Payments) - 1; i >= 0; i-- {
		p := o.Payments[i]
		if len(states) == 0 {
			return p
		}
		for _, s := range states {
			if p.State == s {
				return p
			}
		}
	}
	return nil
}

// ActiveRequest is the capture request that has not finished yet, if any.
func (o *Order) ActiveRequest() *PaymentRequest {
	for _, r := range o.PaymentRequests {
		if r.State == RequestNew || r.State == RequestProcessing {
			return r
		}
	}
	return nil
}

func (it *Item) AdjustmentsTotal(types ...AdjustmentType) int64 {
	return sumAdjustments(it.Adjustments, types)
}

func (it *Item) AdjustmentsTotalRecursively(types ...AdjustmentType) int64 {
	total := sumAdjustments(it.Adjustments, types)
	for _, u := range it.Units {
		total += sumAdjustments(u.Adjustments, types)
	}
	return total
}

func sumAdjustments(adjs []Adjustment, types []AdjustmentType) int64 {
	var total int64
	for _, a := range adjs {
		for _, t := range types {
			if a.Type == t {
				total += a.Amount
				break
			}
		}
	}
	return total
}

// Store persists order aggregates. Save fails with ErrConflict when the
// stored version moved since the order was loaded.
type Store interface {
	Insert(ctx context.Context, o *Order) error
	Find(ctx context.Context, id string) (*Order, error)
	Save(ctx context.Context, o *Order) error
}

// Mutator applies raw values to an order. Business rules (tax, shipping
// cost, promotions) only run in Process.
type Mutator interface {
	// SetItems replaces the order's items. Unknown codes and non-positive
	// quantities are skipped and returned.
	SetItems(ctx context.Context, o *Order, items []ItemQuantity) (skipped []ItemQuantity, err error)
	SetShippingAddress(ctx context.Context, o *Order, a *Address) error
	SetBillingAddress(ctx context.Context, o *Order, a *Address) error
	AssignShippingMethod(ctx context.Context, o *Order, code string) error
	SetCustomer(ctx context.Context, o *Order, c Customer) error
	Process(ctx context.Context, o *Order) error
	AssignNumber(ctx context.Context, o *Order) error
}

type ItemQuantity struct {
	Code     string
	Quantity int
}

// ShippingMethodsResolver lists the methods a shipment may use.
type ShippingMethodsResolver interface {
	SupportedMethods(ctx context.Context, o *Order, s *Shipment) ([]*ShippingMethod, error)
}

type Calculator interface {
	Calculate(o *Order, s *Shipment, configuration map[string]int64) (int64, error)
}

type CalculatorRegistry interface {
	Calculator(kind string) (Calculator, error)
}

// ProvinceLookup answers whether a province code exists, e.g. "US-CA".
type ProvinceLookup interface {
	ProvinceExists(ctx context.Context, code string) bool
}
