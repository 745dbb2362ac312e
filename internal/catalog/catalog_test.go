package catalog

import (
	"testing"
)

func TestDefaultCatalogValid(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	if len(c.Items()) != 12 {
		t.Fatalf("expected 12 items, got %d", len(c.Items()))
	}
	if len(c.Combos()) != 3 {
		t.Fatalf("expected 3 combos, got %d", len(c.Combos()))
	}
	if !c.GiftCodes()[7] || !c.GiftCodes()[8] {
		t.Fatalf("gift codes missing: %v", c.GiftCodes())
	}
}

func TestLookupBySKU(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	it, ok := c.Lookup("2_2")
	if !ok {
		t.Fatal("expected sku 2_2 to exist")
	}
	if it.Code != 2 || it.UnitPrice != 300 {
		t.Fatalf("unexpected item: %+v", it)
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Fatal("expected unknown sku to miss")
	}
}

func TestNewRejectsUnknownComboItem(t *testing.T) {
	items := []Item{{SKU: "1", Code: 1, Name: "Thing", UnitPrice: 10, ListPrice: 10}}
	combos := []Combo{{ID: "x", Name: "X", Items: []int{1, 9}, Discount: 5}}
	if _, err := New(items, combos, []int{1}); err == nil {
		t.Fatal("expected error for combo referencing unknown code")
	}
}

func TestNewRejectsNonPositiveDiscount(t *testing.T) {
	items := []Item{{SKU: "1", Code: 1, Name: "Thing", UnitPrice: 10, ListPrice: 10}}
	combos := []Combo{{ID: "x", Name: "X", Items: []int{1}, Discount: 0}}
	if _, err := New(items, combos, []int{1}); err == nil {
		t.Fatal("expected error for zero discount")
	}
}

func TestNewRejectsDuplicateSKU(t *testing.T) {
	items := []Item{
		{SKU: "1", Code: 1, Name: "A", UnitPrice: 10, ListPrice: 10},
		{SKU: "1", Code: 2, Name: "B", UnitPrice: 10, ListPrice: 10},
	}
	if _, err := New(items, nil, []int{1}); err == nil {
		t.Fatal("expected error for duplicate sku")
	}
}

func TestNewRejectsEmptyGiftCategory(t *testing.T) {
	items := []Item{{SKU: "1", Code: 1, Name: "Thing", UnitPrice: 10, ListPrice: 10}}
	if _, err := New(items, nil, nil); err == nil {
		t.Fatal("expected error for empty gift category")
	}
}

func TestPricingCombosPreservesOrder(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	pcs := c.PricingCombos()
	if len(pcs) != 3 {
		t.Fatalf("expected 3 pricing combos, got %d", len(pcs))
	}
	if pcs[0].ID != "bundle-a" || pcs[1].ID != "bundle-b" || pcs[2].ID != "bundle-c" {
		t.Fatalf("order not preserved: %v %v %v", pcs[0].ID, pcs[1].ID, pcs[2].ID)
	}
	eng := c.Engine(1000)
	if eng.GiftThreshold != 1000 || len(eng.Combos) != 3 {
		t.Fatalf("unexpected engine: %+v", eng)
	}
}
