package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

type Product struct {
	Code  string
	Name  string
	Price int64
}

// Catalog is the static product, shipping and province data behind the
// in-process collaborators.
type Catalog struct {
	variants   map[string]*catalogVariant
	methods    []*ShippingMethod
	provinces  map[string]struct{}
	taxRateBps int64
}

type catalogVariant struct {
	variant Variant
	price   int64
}

func NewCatalog(products []Product, methods []ShippingMethod, provinces []string, taxRateBps int64) *Catalog {
	c := &Catalog{
		variants:   make(map[string]*catalogVariant, len(products)),
		provinces:  make(map[string]struct{}, len(provinces)),
		taxRateBps: taxRateBps,
	}
	for i, p := range products {
		c.variants[p.Code] = &catalogVariant{
			variant: Variant{ID: int64(i + 1), Code: p.Code, Name: p.Name},
			price:   p.Price,
		}
	}
	for i := range methods {
		m := methods[i]
		if m.ID == 0 {
			m.ID = int64(i + 1)
		}
		c.methods = append(c.methods, &m)
	}
	for _, p := range provinces {
		c.provinces[strings.ToUpper(strings.TrimSpace(p))] = struct{}{}
	}
	return c
}

func (c *Catalog) ProvinceExists(_ context.Context, code string) bool {
	_, ok := c.provinces[strings.ToUpper(code)]
	return ok
}

// SupportedMethods filters by the shipping address country. Without an
// address only methods with no country restriction qualify.
func (c *Catalog) SupportedMethods(_ context.Context, o *Order, _ *Shipment) ([]*ShippingMethod, error) {
	country := ""
	if o.ShippingAddress != nil {
		country = strings.ToUpper(o.ShippingAddress.CountryCode)
	}
	out := make([]*ShippingMethod, 0, len(c.methods))
	for _, m := range c.methods {
		if len(m.Countries) == 0 || (country != "" && containsFold(m.Countries, country)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Catalog) method(code string) *ShippingMethod {
	for _, m := range c.methods {
		if m.Code == code {
			return m
		}
	}
	return nil
}

func (c *Catalog) ProductCodes() []string {
	out := make([]string, 0, len(c.variants))
	for code := range c.variants {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

const (
	CalculatorFlatRate    = "flat_rate"
	CalculatorPerUnitRate = "per_unit_rate"
)

type flatRate struct{}

func (flatRate) Calculate(_ *Order, _ *Shipment, cfg map[string]int64) (int64, error) {
	amount, ok := cfg["amount"]
	if !ok {
		return 0, fmt.Errorf("flat_rate: amount is not configured")
	}
	return amount, nil
}

type perUnitRate struct{}

func (perUnitRate) Calculate(o *Order, _ *Shipment, cfg map[string]int64) (int64, error) {
	amount, ok := cfg["amount"]
	if !ok {
		return 0, fmt.Errorf("per_unit_rate: amount is not configured")
	}
	var units int64
	for _, it := range o.Items {
		units += int64(it.Quantity)
	}
	return amount * units, nil
}

// Calculators is a CalculatorRegistry keyed by calculator type.
type Calculators map[string]Calculator

func DefaultCalculators() Calculators {
	return Calculators{
		CalculatorFlatRate:    flatRate{},
		CalculatorPerUnitRate: perUnitRate{},
	}
}

func (c Calculators) Calculator(kind string) (Calculator, error) {
	calc, ok := c[kind]
	if !ok {
		return nil, fmt.Errorf("no shipping calculator registered for %q", kind)
	}
	return calc, nil
}
