package mapper

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

type provinces map[string]bool

func (p provinces) ProvinceExists(_ context.Context, code string) bool { return p[code] }

func decodeAddress(t *testing.T, raw string) *protocol.AddressInput {
	t.Helper()
	var in protocol.AddressInput
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	return &in
}

func TestAddressRoundTripTwoLines(t *testing.T) {
	d := AddressDecoder{Provinces: provinces{"US-CA": true}}
	var a order.Address
	d.Decode(context.Background(), decodeAddress(t, `{
		"name":"Ada King Lovelace","line_one":"1 Main St","line_two":"Apt 4",
		"city":"San Francisco","state":"CA","country":"us","postal_code":"94107"}`), &a)

	assert.Equal(t, "Ada", a.FirstName)
	assert.Equal(t, "King Lovelace", a.LastName)
	assert.Equal(t, "1 Main St\nApt 4", a.Street)
	assert.Equal(t, "US", a.CountryCode)
	assert.Equal(t, "US-CA", a.ProvinceCode)

	enc := EncodeAddress(&a)
	assert.Equal(t, "Ada King Lovelace", enc.Name)
	assert.Equal(t, "1 Main St", enc.LineOne)
	assert.Equal(t, "Apt 4", enc.LineTwo)
	assert.Equal(t, "US", enc.Country)
	assert.Equal(t, "US-CA", enc.State)
}

func TestAddressSingleLineHasNoLineTwoKey(t *testing.T) {
	enc := EncodeAddress(&order.Address{FirstName: "Ada", Street: "1 Main St", CountryCode: "gb"})
	b, err := json.Marshal(enc)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NotContains(t, m, "line_two")
	assert.Equal(t, "", m["state"])
	assert.Equal(t, "GB", m["country"])
	assert.NotContains(t, m, "phone_number")
}

func TestAddressUnknownProvinceDropped(t *testing.T) {
	d := AddressDecoder{Provinces: provinces{}}
	a := order.Address{ProvinceCode: "US-NY"}
	d.Decode(context.Background(), decodeAddress(t, `{"state":"Narnia","country":"US"}`), &a)
	assert.Equal(t, "US-NY", a.ProvinceCode, "unknown state must leave the stored province untouched")
}

func TestAddressNonStringFieldsAreNoops(t *testing.T) {
	d := AddressDecoder{}
	a := order.Address{City: "Paris", Postcode: "75001"}
	d.Decode(context.Background(), decodeAddress(t, `{"city":7,"postal_code":null,"name":"Solo"}`), &a)
	assert.Equal(t, "Paris", a.City)
	assert.Equal(t, "75001", a.Postcode)
	assert.Equal(t, "Solo", a.FirstName)
	assert.Equal(t, "", a.LastName)
}

func promo(t order.AdjustmentType, amount int64) order.Adjustment {
	return order.Adjustment{Type: t, Amount: amount}
}

func TestLineItemInvariant(t *testing.T) {
	items := []*order.Item{
		{ID: 7, Variant: &order.Variant{ID: 3, Code: "mug"}, Quantity: 2, UnitPrice: 1250, Total: 2300,
			Adjustments: []order.Adjustment{promo(order.AdjustmentOrderItemPromotion, -300), promo(order.AdjustmentTax, 100)},
			Units:       []order.Unit{{Adjustments: []order.Adjustment{promo(order.AdjustmentOrderUnitPromotion, -50), promo(order.AdjustmentTax, 50)}}, {}}},
		{ID: 8, Variant: &order.Variant{ID: 9}, Quantity: 1, UnitPrice: 500, Total: 500},
		{ID: 9, Quantity: 3, UnitPrice: 100, Total: 300},
	}
	got := LineItems(&order.Order{Items: items})
	require.Len(t, got, 3)

	for _, li := range got {
		assert.Equal(t, li.BaseAmount+li.Discount, li.Subtotal, li.ID)
		assert.LessOrEqual(t, li.Discount, int64(0), li.ID)
	}
	assert.Equal(t, "line_item_7", got[0].ID)
	assert.Equal(t, protocol.Item{ID: "mug", Quantity: 2}, got[0].Item)
	assert.Equal(t, int64(2500), got[0].BaseAmount)
	assert.Equal(t, int64(-350), got[0].Discount)
	assert.Equal(t, int64(150), got[0].Tax)
	assert.Equal(t, int64(2300), got[0].Total)
	assert.Equal(t, "variant_9", got[1].Item.ID)
	assert.Equal(t, "unknown", got[2].Item.ID)
}

func totalsByType(ts []protocol.Total) map[protocol.TotalType]int64 {
	m := map[protocol.TotalType]int64{}
	for _, t := range ts {
		m[t.Type] = t.Amount
	}
	return m
}

func TestTotalsInvariantAcrossCombinations(t *testing.T) {
	for _, itemPromo := range []int64{0, -200} {
		for _, orderPromo := range []int64{0, -100} {
			for _, shipping := range []int64{0, 700} {
				for _, tax := range []int64{0, 90} {
					o := &order.Order{
						Items: []*order.Item{{ID: 1, Quantity: 2, UnitPrice: 1000,
							Adjustments: []order.Adjustment{promo(order.AdjustmentOrderItemPromotion, itemPromo)}}},
						Adjustments: []order.Adjustment{
							promo(order.AdjustmentOrderPromotion, orderPromo),
							promo(order.AdjustmentShipping, shipping),
						},
						TaxTotal: tax,
					}
					o.Total = 2000 + itemPromo + orderPromo + shipping + tax
					ts := Totals(o)
					m := totalsByType(ts)

					assert.Equal(t, protocol.TotalItemsBaseAmount, ts[0].Type)
					assert.Equal(t, protocol.TotalTotal, ts[len(ts)-1].Type)
					assert.Equal(t, m[protocol.TotalItemsBaseAmount]+m[protocol.TotalItemsDiscount], m[protocol.TotalSubtotal])
					assert.Equal(t, o.Total, m[protocol.TotalTotal])
					_, hasDiscount := m[protocol.TotalItemsDiscount]
					assert.Equal(t, itemPromo != 0, hasDiscount)
					_, hasShipping := m[protocol.TotalFulfillment]
					assert.Equal(t, shipping != 0, hasShipping)
					_, hasTax := m[protocol.TotalTax]
					assert.Equal(t, tax != 0, hasTax)
				}
			}
		}
	}
}

func TestTotalsShippingFlooredAtZero(t *testing.T) {
	o := &order.Order{Adjustments: []order.Adjustment{
		promo(order.AdjustmentShipping, 500),
		promo(order.AdjustmentOrderShippingPromotion, -800),
	}}
	m := totalsByType(Totals(o))
	assert.NotContains(t, m, protocol.TotalFulfillment)

	o.Adjustments[1].Amount = -200
	assert.Equal(t, int64(300), totalsByType(Totals(o))[protocol.TotalFulfillment])
}

func TestTotalsLabels(t *testing.T) {
	o := &order.Order{
		Items:       []*order.Item{{Quantity: 1, UnitPrice: 100, Adjustments: []order.Adjustment{promo(order.AdjustmentOrderItemPromotion, -10)}}},
		Adjustments: []order.Adjustment{promo(order.AdjustmentOrderPromotion, -5), promo(order.AdjustmentShipping, 20)},
		TaxTotal:    3,
		Total:       108,
	}
	var labels []string
	for _, tt := range Totals(o) {
		labels = append(labels, tt.DisplayText)
	}
	assert.Equal(t, []string{"Items", "Item Discounts", "Subtotal", "Discount", "Shipping", "Tax", "Total"}, labels)
}

type staticMethods struct {
	methods []*order.ShippingMethod
	err     error
}

func (s staticMethods) SupportedMethods(context.Context, *order.Order, *order.Shipment) ([]*order.ShippingMethod, error) {
	return s.methods, s.err
}

type failingCalc struct{}

func (failingCalc) Calculate(*order.Order, *order.Shipment, map[string]int64) (int64, error) {
	return 0, errors.New("rate table offline")
}

func TestFulfillmentOptions(t *testing.T) {
	ups := &order.ShippingMethod{Code: "ups", Name: "UPS", Description: "2-3 days", Calculator: order.CalculatorFlatRate, Configuration: map[string]int64{"amount": 1550}}
	broken := &order.ShippingMethod{ID: 4, Calculator: "broken"}
	calcs := order.DefaultCalculators()
	calcs["broken"] = failingCalc{}

	f := Fulfillment{Methods: staticMethods{methods: []*order.ShippingMethod{ups, broken}}, Calculators: calcs}
	shipment := &order.Shipment{ID: 1}
	o := &order.Order{Shipments: []*order.Shipment{shipment, {ID: 2}}}

	opts := f.Options(context.Background(), o)
	require.Len(t, opts, 2)
	assert.Equal(t, protocol.FulfillmentOption{Type: "shipping", ID: "ups", Title: "UPS", Subtitle: "2-3 days", Subtotal: "15.50", Tax: "0.00", Total: "15.50"}, opts[0])
	assert.Equal(t, "method_4", opts[1].ID)
	assert.Equal(t, "Unknown", opts[1].Title)
	assert.Equal(t, "0.00", opts[1].Total)
	assert.Nil(t, shipment.Method, "listing options must not assign a method")
	assert.Equal(t, "", SelectedOptionID(o))

	shipment.Method = ups
	assert.Equal(t, "ups", SelectedOptionID(o))
}

func TestFulfillmentResolverErrorYieldsEmptyList(t *testing.T) {
	f := Fulfillment{Methods: staticMethods{err: errors.New("no zone")}, Calculators: order.DefaultCalculators()}
	opts := f.Options(context.Background(), &order.Order{Shipments: []*order.Shipment{{ID: 1}}})
	assert.NotNil(t, opts)
	assert.Empty(t, opts)
	assert.Empty(t, f.Options(context.Background(), &order.Order{}))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "15.50", Money(1550))
	assert.Equal(t, "0.00", Money(0))
	assert.Equal(t, "0.05", Money(5))
	assert.Equal(t, "1234.00", Money(123400))
}

func TestBuyerNeedsEmailAndNames(t *testing.T) {
	assert.Nil(t, Buyer(&order.Order{}))
	assert.Nil(t, Buyer(&order.Order{Customer: &order.Customer{Email: "a@b.c"}}))
	b := Buyer(&order.Order{Customer: &order.Customer{Email: "a@b.c", FirstName: "Ada", LastName: "L"}})
	require.NotNil(t, b)
	assert.Equal(t, "a@b.c", b.Email)
}

func TestSerializerCompletedSession(t *testing.T) {
	s := Serializer{
		Fulfillment:   Fulfillment{Methods: staticMethods{}, Calculators: order.DefaultCalculators()},
		PermalinkBase: func(string) string { return "https://shop.example.com/" },
	}
	o := &order.Order{CurrencyCode: "USD", Number: "000000042", TokenValue: "tok"}

	got := s.Session(context.Background(), "acp_sess_1", protocol.StatusCompleted, o)
	assert.Equal(t, "usd", got.Currency)
	require.NotNil(t, got.Order)
	assert.Equal(t, protocol.Order{ID: "000000042", CheckoutSessionID: "acp_sess_1", PermalinkURL: "https://shop.example.com/order/tok"}, *got.Order)
	assert.Equal(t, "stripe", got.PaymentProvider.Provider)
	assert.NotNil(t, got.Messages)
	assert.NotNil(t, got.Links)

	open := s.Session(context.Background(), "acp_sess_1", protocol.StatusReadyForPayment, o)
	assert.Nil(t, open.Order)
}

func TestSerializerPanicsOnCompletedOrderWithoutNumber(t *testing.T) {
	s := Serializer{Fulfillment: Fulfillment{Methods: staticMethods{}, Calculators: order.DefaultCalculators()}}
	assert.Panics(t, func() {
		s.Session(context.Background(), "acp_sess_1", protocol.StatusCompleted, &order.Order{})
	})
}

func TestFulfillmentMethodLookup(t *testing.T) {
	ups := &order.ShippingMethod{Code: "ups", Calculator: order.CalculatorFlatRate}
	f := Fulfillment{Methods: staticMethods{methods: []*order.ShippingMethod{ups}}, Calculators: order.DefaultCalculators()}
	o := &order.Order{Shipments: []*order.Shipment{{ID: 1}}}

	assert.Same(t, ups, f.Method(context.Background(), o, "ups"))
	assert.Nil(t, f.Method(context.Background(), o, "fedex"))
	assert.Nil(t, f.Method(context.Background(), &order.Order{}, "ups"))
}

func TestOnlyFirstShipmentIsRead(t *testing.T) {
	ups := &order.ShippingMethod{Code: "ups", Calculator: order.CalculatorFlatRate}
	fedex := &order.ShippingMethod{Code: "fedex", Calculator: order.CalculatorFlatRate}
	o := &order.Order{Shipments: []*order.Shipment{{ID: 1}, {ID: 2, Method: fedex}}}

	assert.Equal(t, "", SelectedOptionID(o), "a method on a later shipment is ignored")
	o.Shipments[0].Method = ups
	assert.Equal(t, "ups", SelectedOptionID(o))
}
