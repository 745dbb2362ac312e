package catalog

import (
	"fmt"

	"github.com/ckmerch/backend-store/internal/pricing"
)

// Item is one sellable catalog entry. Variants of the same product (colors,
// sizes) are separate items with distinct SKUs sharing an item code; combo
// matching operates on the code, pricing on the item.
type Item struct {
	SKU       string        `json:"sku"`
	Code      int           `json:"code"`
	Name      string        `json:"name"`
	Category  string        `json:"category"`
	UnitPrice pricing.Money `json:"unitPrice"`
	ListPrice pricing.Money `json:"listPrice"`
}

// Combo mirrors pricing.Combo with display metadata for the storefront.
type Combo struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Items    []int         `json:"items"`
	Discount pricing.Money `json:"discount"`
	Note     string        `json:"note,omitempty"`
}

// Catalog is the fixed sale inventory: items, combo deals and the gift
// category set. It is defined at build time and validated once at startup.
type Catalog struct {
	items     []Item
	combos    []Combo
	giftCodes map[int]bool
	bySKU     map[string]Item
}

// New validates and assembles a catalog. A combo referencing an item code
// absent from the item list is a catalog-integrity error and must abort
// startup.
func New(items []Item, combos []Combo, giftCodes []int) (*Catalog, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("catalog: no items defined")
	}
	bySKU := make(map[string]Item, len(items))
	codes := make(map[int]bool, len(items))
	for _, it := range items {
		if it.SKU == "" {
			return nil, fmt.Errorf("catalog: item %q has empty sku", it.Name)
		}
		if _, dup := bySKU[it.SKU]; dup {
			return nil, fmt.Errorf("catalog: duplicate sku %q", it.SKU)
		}
		if it.UnitPrice < 0 || it.ListPrice < 0 {
			return nil, fmt.Errorf("catalog: item %q has negative price", it.SKU)
		}
		bySKU[it.SKU] = it
		codes[it.Code] = true
	}
	for _, c := range combos {
		if c.ID == "" {
			return nil, fmt.Errorf("catalog: combo %q has empty id", c.Name)
		}
		if c.Discount <= 0 {
			return nil, fmt.Errorf("catalog: combo %q has non-positive discount", c.ID)
		}
		if len(c.Items) == 0 {
			return nil, fmt.Errorf("catalog: combo %q requires no items", c.ID)
		}
		for _, code := range c.Items {
			if !codes[code] {
				return nil, fmt.Errorf("catalog: combo %q references unknown item code %d", c.ID, code)
			}
		}
	}
	gifts := make(map[int]bool, len(giftCodes))
	for _, code := range giftCodes {
		if !codes[code] {
			return nil, fmt.Errorf("catalog: gift category references unknown item code %d", code)
		}
		gifts[code] = true
	}
	if len(gifts) == 0 {
		return nil, fmt.Errorf("catalog: no gift category items defined")
	}
	return &Catalog{items: items, combos: combos, giftCodes: gifts, bySKU: bySKU}, nil
}

// Items returns the catalog entries in declaration order.
func (c *Catalog) Items() []Item { return c.items }

// Combos returns the combo deals in declaration order.
func (c *Catalog) Combos() []Combo { return c.combos }

// GiftCodes returns the item codes making up the gift category.
func (c *Catalog) GiftCodes() map[int]bool { return c.giftCodes }

// Lookup resolves an item by SKU.
func (c *Catalog) Lookup(sku string) (Item, bool) {
	it, ok := c.bySKU[sku]
	return it, ok
}

// PricingCombos converts the combo definitions for the pricing engine,
// preserving declaration order so the engine's tie-break stays stable.
func (c *Catalog) PricingCombos() []pricing.Combo {
	out := make([]pricing.Combo, 0, len(c.combos))
	for _, cb := range c.combos {
		out = append(out, pricing.Combo{
			ID:        cb.ID,
			Name:      cb.Name,
			ItemCodes: append([]int(nil), cb.Items...),
			Discount:  cb.Discount,
		})
	}
	return out
}

// Engine builds a pricing engine bound to this catalog.
func (c *Catalog) Engine(giftThreshold pricing.Money) pricing.Engine {
	return pricing.Engine{
		Combos:        c.PricingCombos(),
		GiftItemCodes: c.giftCodes,
		GiftThreshold: giftThreshold,
	}
}
