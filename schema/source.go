// Package schema turns LeafBridge product data into a schema.org Product
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PriceValue holds a price field that may arrive as a JSON string or number.
// The literal text is kept so "25.00" stays "25.00".
type PriceValue struct {
	text string
	set  bool
}

// NewPriceValue returns a present price with the given text
func NewPriceValue(text string) PriceValue {
	return PriceValue{text: text, set: true}
}

// UnmarshalJSON keeps strings and numbers. Any other JSON value is absent.
func (p *PriceValue) UnmarshalJSON(data []byte) error {
	text, ok, err := decodeScalar(data)
	if err != nil {
		return err
	}
	*p = PriceValue{text: text, set: ok}
	return nil
}

// Present reports whether the field exists with non-empty text
func (p PriceValue) Present() bool {
	return p.set && strings.TrimSpace(p.text) != ""
}

// String returns the literal price text
func (p PriceValue) String() string {
	return p.text
}

// Text is an optional display field. Numbers keep their literal form.
type Text struct {
	text string
	set  bool
}

// UnmarshalJSON keeps strings and numbers. Any other JSON value is absent.
func (t *Text) UnmarshalJSON(data []byte) error {
	text, ok, err := decodeScalar(data)
	if err != nil {
		return err
	}
	*t = Text{text: text, set: ok}
	return nil
}

// Present reports whether the field exists and is not empty
func (t Text) Present() bool {
	return t.set && t.text != ""
}

func (t Text) String() string {
	return t.text
}

func decodeScalar(data []byte) (string, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", false, nil
	}

	switch c := data[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return "", false, err
		}
		return n.String(), true, nil
	default:
		return "", false, nil
	}
}

// Variant is one purchasable configuration of a product
type Variant struct {
	SpecialPriceRec PriceValue `json:"specialPriceRec"`
	PriceRec        PriceValue `json:"priceRec"`
	SpecialPriceMed PriceValue `json:"specialPriceMed"`
	PriceMed        PriceValue `json:"priceMed"`
}

// Variants is the variant list. A value that is not an array reads as empty.
type Variants []Variant

func (v *Variants) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		*v = nil
		return nil
	}

	out := make(Variants, len(items))
	for i, item := range items {
		if !isObject(item) {
			continue
		}
		if err := json.Unmarshal(item, &out[i]); err != nil {
			return fmt.Errorf("variant %d: %w", i, err)
		}
	}
	*v = out
	return nil
}

// Potency carries the display string for a cannabinoid measurement
type Potency struct {
	Formatted Text `json:"formatted"`
}

// UnmarshalJSON treats anything but an object as no potency
func (p *Potency) UnmarshalJSON(data []byte) error {
	*p = Potency{}
	if !isObject(data) {
		return nil
	}
	type plain Potency
	return json.Unmarshal(data, (*plain)(p))
}

// ProductSource is the object stored in the add-to-cart container attribute
type ProductSource struct {
	Variants   Variants        `json:"variants"`
	BrandName  Text            `json:"brand_name"`
	PotencyThc *Potency        `json:"potencyThc"`
	PotencyCbd *Potency        `json:"potencyCbd"`
	StrainType Text            `json:"strainType"`
	Category   Text            `json:"category"`
	ID         json.RawMessage `json:"id"`
}

// ParseProductSource decodes the raw attribute text
func ParseProductSource(raw string) (*ProductSource, error) {
	if !json.Valid([]byte(raw)) {
		return nil, errors.New("product data is not valid JSON")
	}
	if !isObject([]byte(raw)) {
		return nil, errors.New("product data is not a JSON object")
	}

	var src ProductSource
	if err := json.Unmarshal([]byte(raw), &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// HasID reports whether the source carries a usable id
func (s *ProductSource) HasID() bool {
	id := bytes.TrimSpace(s.ID)
	switch string(id) {
	case "", "null", "false", `""`:
		return false
	}
	return true
}

func isObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}

func (p *Potency) value() (string, bool) {
	if p == nil || !p.Formatted.Present() {
		return "", false
	}
	return p.Formatted.String(), true
}
