package schema

// Storefront rating and reviews copied from the shop's Weedmaps listing.
// They are the same for every product.

type AggregateRating struct {
	Type        string `json:"@type"`
	RatingValue string `json:"ratingValue"`
	BestRating  string `json:"bestRating"`
	WorstRating string `json:"worstRating"`
	ReviewCount string `json:"reviewCount"`
	RatingCount string `json:"ratingCount"`
}

type Review struct {
	Type          string `json:"@type"`
	Author        Person `json:"author"`
	DatePublished string `json:"datePublished"`
	ReviewRating  Rating `json:"reviewRating"`
	ReviewBody    string `json:"reviewBody"`
}

type Person struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

type Rating struct {
	Type        string `json:"@type"`
	RatingValue string `json:"ratingValue"`
	BestRating  string `json:"bestRating"`
	WorstRating string `json:"worstRating"`
}

// StoreRating is attached to every product
var StoreRating = AggregateRating{
	Type:        "AggregateRating",
	RatingValue: "4.8",
	BestRating:  "5",
	WorstRating: "1",
	ReviewCount: "2600",
	RatingCount: "2600",
}

var storeReviews = []struct {
	author, date, body string
}{
	{"hro", "2025-01-15", "Quick easy and great prices!"},
	{"venom1975", "2025-01-10", "Amazing service, I'll come back soon. Great staff and always friendly!"},
	{"Jetty86", "2025-01-08", "Good bud and I like that they include the taxes."},
	{"RustyDusty99", "2025-01-05", "The staff is knowledgeable and friendly; the prices are reasonable."},
}

// Reviews returns a fresh copy of the four storefront reviews
func Reviews() []Review {
	out := make([]Review, 0, len(storeReviews))
	for _, r := range storeReviews {
		out = append(out, Review{
			Type:          "Review",
			Author:        Person{Type: "Person", Name: r.author},
			DatePublished: r.date,
			ReviewRating:  Rating{Type: "Rating", RatingValue: "5", BestRating: "5", WorstRating: "1"},
			ReviewBody:    r.body,
		})
	}
	return out
}
