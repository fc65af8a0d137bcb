package domain

// ProductAttributes are the storefront-side fields of a product, used
// to seed challenger generation.
type ProductAttributes struct {
	Title       string   `json:"title"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}
