package catalog

// Default returns the current sale's inventory. Prices are in minor units.
func Default() (*Catalog, error) {
	items := []Item{
		{SKU: "1", Code: 1, Name: "Varsity Jacket", Category: "apparel", UnitPrice: 700, ListPrice: 900},
		{SKU: "2_1", Code: 2, Name: "Tee (Navy)", Category: "apparel", UnitPrice: 300, ListPrice: 500},
		{SKU: "2_2", Code: 2, Name: "Tee (White)", Category: "apparel", UnitPrice: 300, ListPrice: 500},
		{SKU: "2_3", Code: 2, Name: "Tee (Black)", Category: "apparel", UnitPrice: 300, ListPrice: 500},
		{SKU: "3", Code: 3, Name: "ID Holder", Category: "accessory", UnitPrice: 200, ListPrice: 400},
		{SKU: "4_1", Code: 4, Name: "Hoodie (White)", Category: "apparel", UnitPrice: 650, ListPrice: 850},
		{SKU: "4_2", Code: 4, Name: "Hoodie (Black)", Category: "apparel", UnitPrice: 650, ListPrice: 850},
		{SKU: "5", Code: 5, Name: "Sports Towel", Category: "accessory", UnitPrice: 200, ListPrice: 400},
		{SKU: "6", Code: 6, Name: "Crossbody Bag", Category: "accessory", UnitPrice: 750, ListPrice: 950},
		{SKU: "7_1", Code: 7, Name: "Keychain (Mascot)", Category: "gift", UnitPrice: 50, ListPrice: 50},
		{SKU: "7_2", Code: 7, Name: "Keychain (Crest)", Category: "gift", UnitPrice: 50, ListPrice: 50},
		{SKU: "8", Code: 8, Name: "Enamel Badge", Category: "gift", UnitPrice: 50, ListPrice: 50},
	}
	combos := []Combo{
		{ID: "bundle-a", Name: "Bundle A", Items: []int{2, 5}, Discount: 100, Note: "tee + towel"},
		{ID: "bundle-b", Name: "Bundle B", Items: []int{1, 2, 2, 4}, Discount: 150, Note: "jacket + two tees + hoodie"},
		{ID: "bundle-c", Name: "Bundle C", Items: []int{1, 2, 2, 3, 4, 5, 6, 8}, Discount: 350, Note: "full set"},
	}
	return New(items, combos, []int{7, 8})
}
