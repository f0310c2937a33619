package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("product not found")

// Product is a digital subscription credential on sale, e.g. a streaming or
// VPN premium account. Each duration variant carries its own price.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	LogoURL     string    `json:"logo_url"`
	Variants    []Variant `json:"variants"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Variant struct {
	ID       string          `json:"id"`
	Duration string          `json:"duration"`
	Price    decimal.Decimal `json:"price"`
}

// Variant returns the variant with the given id, if the product has one.
func (p Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// ListFilter narrows and pages List queries.
type ListFilter struct {
	Category string
	Search   string
	Limit    int
	Offset   int
}
