// Package mapper projects order aggregates onto the protocol wire format
// and decodes wire input back onto orders.
package mapper

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

func EncodeAddress(a *order.Address) *protocol.Address {
	if a == nil {
		return nil
	}
	out := &protocol.Address{
		Name:       strings.TrimSpace(a.FirstName + " " + a.LastName),
		City:       a.City,
		State:      a.ProvinceCode,
		Country:    strings.ToUpper(a.CountryCode),
		PostalCode: a.Postcode,
	}
	lineOne, lineTwo, _ := strings.Cut(a.Street, "\n")
	out.LineOne = lineOne
	if lineTwo != "" {
		out.LineTwo = lineTwo
	}
	return out
}

// AddressDecoder writes wire addresses onto order addresses.
type AddressDecoder struct {
	Provinces order.ProvinceLookup
	Log       logrus.FieldLogger
}

// Decode applies every string field present in in. The state is only kept
// when the province is known for the country; anything else is dropped so
// free-text regions never fail a request.
func (d AddressDecoder) Decode(ctx context.Context, in *protocol.AddressInput, dst *order.Address) {
	if in == nil {
		return
	}
	if in.Name.Set {
		first, last, _ := strings.Cut(strings.TrimSpace(in.Name.Value), " ")
		dst.FirstName = first
		dst.LastName = strings.TrimSpace(last)
	}
	if in.LineOne.Set {
		street := in.LineOne.Value
		if in.LineTwo.Set && in.LineTwo.Value != "" {
			street += "\n" + in.LineTwo.Value
		}
		dst.Street = street
	}
	if in.City.Set {
		dst.City = in.City.Value
	}
	if in.PostalCode.Set {
		dst.Postcode = in.PostalCode.Value
	}
	if in.Country.Set {
		dst.CountryCode = strings.ToUpper(in.Country.Value)
	}
	if in.State.Set && in.State.Value != "" {
		if code, ok := d.province(ctx, dst.CountryCode, in.State.Value); ok {
			dst.ProvinceCode = code
		} else if d.Log != nil {
			d.Log.WithFields(logrus.Fields{"country": dst.CountryCode, "state": in.State.Value}).
				Debug("unknown province dropped from address")
		}
	}
}

func (d AddressDecoder) province(ctx context.Context, country, state string) (string, bool) {
	if d.Provinces == nil {
		return "", false
	}
	state = strings.ToUpper(strings.TrimSpace(state))
	if country != "" && !strings.Contains(state, "-") {
		if code := country + "-" + state; d.Provinces.ProvinceExists(ctx, code) {
			return code, true
		}
	}
	if d.Provinces.ProvinceExists(ctx, state) {
		return state, true
	}
	return "", false
}
