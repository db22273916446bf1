package schema

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultPrice is used when no variant carries a usable price
const DefaultPrice = "0.00"

// ResolvePrice picks the offer price from the first variant.
// Sale prices win only when they are numerically above zero.
func ResolvePrice(variants []Variant) string {
	if len(variants) == 0 {
		return DefaultPrice
	}

	v := variants[0]
	switch {
	case positive(v.SpecialPriceRec):
		return v.SpecialPriceRec.String()
	case v.PriceRec.Present():
		return v.PriceRec.String()
	case positive(v.SpecialPriceMed):
		return v.SpecialPriceMed.String()
	case v.PriceMed.Present():
		return v.PriceMed.String()
	}

	return DefaultPrice
}

func positive(p PriceValue) bool {
	if !p.Present() {
		return false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(p.String()))
	if err != nil {
		return false
	}
	return d.IsPositive()
}
