package schema

import (
	"encoding/json"
	"time"
)

const (
	Context    = "https://schema.org/"
	dateLayout = "2006-01-02"
)

// ProductSchema is the schema.org Product emitted as JSON-LD.
// Field order is the serialized key order.
type ProductSchema struct {
	Context            string          `json:"@context"`
	Type               string          `json:"@type"`
	Name               string          `json:"name"`
	Image              string          `json:"image"`
	Description        string          `json:"description"`
	Brand              Brand           `json:"brand"`
	Offers             Offer           `json:"offers"`
	AdditionalProperty []PropertyValue `json:"additionalProperty,omitempty"`
	SKU                json.RawMessage `json:"sku,omitempty"`
	AggregateRating    AggregateRating `json:"aggregateRating"`
	Review             []Review        `json:"review"`
}

type Brand struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

type PropertyValue struct {
	Type  string `json:"@type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Offer struct {
	Type                    string               `json:"@type"`
	URL                     string               `json:"url"`
	PriceCurrency           string               `json:"priceCurrency"`
	Price                   string               `json:"price"`
	Availability            string               `json:"availability"`
	ItemCondition           string               `json:"itemCondition"`
	PriceValidUntil         string               `json:"priceValidUntil"`
	AvailableDeliveryMethod string               `json:"availableDeliveryMethod"`
	AreaServed              AreaServed           `json:"areaServed"`
	HasMerchantReturnPolicy MerchantReturnPolicy `json:"hasMerchantReturnPolicy"`
	ShippingDetails         ShippingDetails      `json:"shippingDetails"`
}

type AreaServed struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

type MerchantReturnPolicy struct {
	Type                 string `json:"@type"`
	ApplicableCountry    string `json:"applicableCountry"`
	ReturnPolicyCategory string `json:"returnPolicyCategory"`
}

type ShippingDetails struct {
	Type                string        `json:"@type"`
	ShippingDestination DefinedRegion `json:"shippingDestination"`
	DeliveryTime        DeliveryTime  `json:"deliveryTime"`
	ShippingRate        MonetaryValue `json:"shippingRate"`
}

type DefinedRegion struct {
	Type           string `json:"@type"`
	AddressCountry string `json:"addressCountry"`
	AddressRegion  string `json:"addressRegion"`
}

type DeliveryTime struct {
	Type         string            `json:"@type"`
	HandlingTime QuantitativeValue `json:"handlingTime"`
	TransitTime  QuantitativeValue `json:"transitTime"`
}

type QuantitativeValue struct {
	Type     string `json:"@type"`
	MinValue int    `json:"minValue"`
	MaxValue int    `json:"maxValue"`
	UnitCode string `json:"unitCode"`
}

type MonetaryValue struct {
	Type     string `json:"@type"`
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Page holds the values read from the rendered document
type Page struct {
	URL         string
	Title       string
	Image       string
	Description string
}

// Store holds the per-shop constants baked into every offer
type Store struct {
	DefaultBrand   string
	Currency       string
	AreaServed     string
	Country        string
	Region         string
	ShippingCost   string
	HandlingDays   int
	TransitDays    int
	DeliveryMethod string
}

// DefaultStore returns the LAX Cannabis Club storefront values
func DefaultStore() Store {
	return Store{
		DefaultBrand:   "LAX Cannabis Club",
		Currency:       "USD",
		AreaServed:     "California",
		Country:        "US",
		Region:         "CA",
		ShippingCost:   "0",
		DeliveryMethod: "https://schema.org/OnSitePickup",
	}
}

// Build assembles the Product schema. renderedAt fixes priceValidUntil.
func Build(src *ProductSource, page Page, store Store, renderedAt time.Time) *ProductSchema {
	brand := store.DefaultBrand
	if src.BrandName.Present() {
		brand = src.BrandName.String()
	}

	p := &ProductSchema{
		Context:     Context,
		Type:        "Product",
		Name:        page.Title,
		Image:       page.Image,
		Description: page.Description,
		Brand:       Brand{Type: "Brand", Name: brand},
		Offers:      buildOffer(page.URL, ResolvePrice(src.Variants), store, renderedAt),
	}

	if props := AdditionalProperties(src); len(props) > 0 {
		p.AdditionalProperty = props
	}

	if src.HasID() {
		p.SKU = src.ID
	}

	p.AggregateRating = StoreRating
	p.Review = Reviews()

	return p
}

// AdditionalProperties lists THC, CBD, strain type and category, in that
// order, skipping fields the source does not carry.
func AdditionalProperties(src *ProductSource) []PropertyValue {
	var props []PropertyValue
	add := func(name, value string) {
		props = append(props, PropertyValue{Type: "PropertyValue", Name: name, Value: value})
	}

	if v, ok := src.PotencyThc.value(); ok {
		add("THC Content", v)
	}
	if v, ok := src.PotencyCbd.value(); ok {
		add("CBD Content", v)
	}
	if src.StrainType.Present() {
		add("Strain Type", src.StrainType.String())
	}
	if src.Category.Present() {
		add("Product Category", src.Category.String())
	}

	return props
}

// PriceValidUntil is the date one year after t
func PriceValidUntil(t time.Time) string {
	return t.AddDate(1, 0, 0).Format(dateLayout)
}

func buildOffer(url, price string, store Store, renderedAt time.Time) Offer {
	days := func(n int) QuantitativeValue {
		return QuantitativeValue{Type: "QuantitativeValue", MinValue: n, MaxValue: n, UnitCode: "DAY"}
	}

	return Offer{
		Type:                    "Offer",
		URL:                     url,
		PriceCurrency:           store.Currency,
		Price:                   price,
		Availability:            "https://schema.org/InStock",
		ItemCondition:           "https://schema.org/NewCondition",
		PriceValidUntil:         PriceValidUntil(renderedAt),
		AvailableDeliveryMethod: store.DeliveryMethod,
		AreaServed:              AreaServed{Type: "State", Name: store.AreaServed},
		HasMerchantReturnPolicy: MerchantReturnPolicy{
			Type:                 "MerchantReturnPolicy",
			ApplicableCountry:    store.Country,
			ReturnPolicyCategory: "https://schema.org/MerchantReturnNotPermitted",
		},
		ShippingDetails: ShippingDetails{
			Type: "OfferShippingDetails",
			ShippingDestination: DefinedRegion{
				Type:           "DefinedRegion",
				AddressCountry: store.Country,
				AddressRegion:  store.Region,
			},
			DeliveryTime: DeliveryTime{
				Type:         "ShippingDeliveryTime",
				HandlingTime: days(store.HandlingDays),
				TransitTime:  days(store.TransitDays),
			},
			ShippingRate: MonetaryValue{
				Type:     "MonetaryAmount",
				Value:    store.ShippingCost,
				Currency: store.Currency,
			},
		},
	}
}
