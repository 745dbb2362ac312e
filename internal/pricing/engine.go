package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// Line describes a cart line used for pricing. SKU distinguishes variants;
// ItemCode groups variants of the same product for combo matching.
type Line struct {
	SKU       string
	ItemCode  int
	Name      string
	UnitPrice Money
	Qty       int
}

// Combo is a bundle of required item codes that grants a flat discount each
// time it is applied. ItemCodes is a multiset: a code listed twice requires
// two units per application.
type Combo struct {
	ID        string
	Name      string
	ItemCodes []int
	Discount  Money
}

// Required returns the per-application quantity each item code contributes.
func (c Combo) Required() map[int]int {
	req := make(map[int]int, len(c.ItemCodes))
	for _, code := range c.ItemCodes {
		req[code]++
	}
	return req
}

// Applied records one combo's contribution to a quote.
type Applied struct {
	ComboID       string `json:"comboId"`
	Name          string `json:"name"`
	Applications  int    `json:"applications"`
	DiscountEach  Money  `json:"discountPerApplication"`
	TotalDiscount Money  `json:"totalDiscount"`
}

// Quote is the full pricing breakdown for one cart snapshot. It is derived
// state: recompute it after every cart mutation and never reuse a quote for a
// snapshot it was not computed from.
type Quote struct {
	OriginalTotal       Money       `json:"originalTotal"`
	AppliedCombos       []Applied   `json:"appliedCombos"`
	RemainingItemCounts map[int]int `json:"remainingItemCounts"`
	ComboDiscountTotal  Money       `json:"comboDiscountTotal"`
	GiftEligible        bool        `json:"giftEligible"`
	GiftDiscount        Money       `json:"giftDiscount"`
	AmountNeededForGift Money       `json:"amountNeededForGift"`
	FinalTotal          Money       `json:"finalTotal"`
	OverrideApplied     bool        `json:"overrideApplied"`
}

// Engine evaluates combo deals and the threshold gift against cart snapshots.
// Combos are evaluated in declaration order, which fixes the tie-break between
// equal-discount solutions.
type Engine struct {
	Combos        []Combo
	GiftItemCodes map[int]bool
	GiftThreshold Money
}

// Quote computes the pricing breakdown for the given lines. When override is
// true the whole order is waived: no combos, no gift, zero payable. Callers
// must establish that the account is allowed to use the override before
// setting it.
func (e Engine) Quote(lines []Line, override bool) Quote {
	var original Money
	for _, ln := range lines {
		if ln.Qty <= 0 {
			continue
		}
		original += Money(ln.Qty) * ln.UnitPrice
	}

	if override {
		return Quote{
			OriginalTotal:       original,
			AppliedCombos:       []Applied{},
			RemainingItemCounts: map[int]int{},
			FinalTotal:          0,
			OverrideApplied:     true,
		}
	}

	quantities := aggregateByCode(lines)
	combo := e.searchCombos(quantities)

	afterCombo := original - combo.discount
	gift := e.evaluateGift(lines, combo, afterCombo)

	return Quote{
		OriginalTotal:       original,
		AppliedCombos:       combo.applied,
		RemainingItemCounts: combo.remaining,
		ComboDiscountTotal:  combo.discount,
		GiftEligible:        gift.eligible,
		GiftDiscount:        gift.discount,
		AmountNeededForGift: gift.amountNeeded,
		FinalTotal:          afterCombo - gift.discount,
	}
}

// TotalDiscount is the full amount subtracted from the original total,
// whatever its source.
func (q Quote) TotalDiscount() Money {
	if q.OverrideApplied {
		return q.OriginalTotal
	}
	return q.ComboDiscountTotal + q.GiftDiscount
}

type comboResult struct {
	discount  Money
	applied   []Applied
	remaining map[int]int
}

// searchCombos finds the application counts that maximize the total combo
// discount. Combos compete for the same scarce items, so a greedy pick can be
// dominated; the catalog is tiny, which keeps the exhaustive search cheap.
func (e Engine) searchCombos(quantities map[int]int) comboResult {
	candidates := make([]Combo, 0, len(e.Combos))
	for _, c := range e.Combos {
		if maxApplications(c.Required(), quantities) >= 1 {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return comboResult{discount: 0, applied: []Applied{}, remaining: quantities}
	}
	return findOptimal(candidates, quantities)
}

// findOptimal recursively tries every application count for every candidate,
// deducting consumed units from a copied quantity map before recursing into
// the remaining combos. A branch replaces the best result only when strictly
// better, so the first solution found in declaration order wins ties.
func findOptimal(candidates []Combo, quantities map[int]int) comboResult {
	best := comboResult{discount: 0, applied: []Applied{}, remaining: quantities}

	for i, combo := range candidates {
		required := combo.Required()
		max := maxApplications(required, quantities)
		if max < 1 {
			continue
		}
		rest := make([]Combo, 0, len(candidates)-1)
		rest = append(rest, candidates[:i]...)
		rest = append(rest, candidates[i+1:]...)

		for count := max; count >= 1; count-- {
			left := copyCounts(quantities)
			for code, qty := range required {
				left[code] -= qty * count
			}

			sub := comboResult{discount: 0, applied: []Applied{}, remaining: left}
			if len(rest) > 0 {
				sub = findOptimal(rest, left)
			}

			total := combo.Discount*Money(count) + sub.discount
			if total > best.discount {
				applied := make([]Applied, 0, len(sub.applied)+1)
				applied = append(applied, Applied{
					ComboID:       combo.ID,
					Name:          combo.Name,
					Applications:  count,
					DiscountEach:  combo.Discount,
					TotalDiscount: combo.Discount * Money(count),
				})
				applied = append(applied, sub.applied...)
				best = comboResult{discount: total, applied: applied, remaining: sub.remaining}
			}
		}
	}
	return best
}

type giftResult struct {
	eligible     bool
	discount     Money
	amountNeeded Money
}

// evaluateGift decides whether the cart earns the free threshold gift. Gift
// units already consumed as combo ingredients do not count, and eligibility
// requires the post-combo total minus the gift's own price to still clear the
// threshold.
func (e Engine) evaluateGift(lines []Line, combo comboResult, afterCombo Money) giftResult {
	if len(e.GiftItemCodes) == 0 || e.GiftThreshold <= 0 {
		return giftResult{}
	}

	var giftQty int
	var firstGiftPrice Money
	haveGiftLine := false
	for _, ln := range lines {
		if ln.Qty <= 0 || !e.GiftItemCodes[ln.ItemCode] {
			continue
		}
		giftQty += ln.Qty
		if !haveGiftLine {
			firstGiftPrice = ln.UnitPrice
			haveGiftLine = true
		}
	}

	usedInCombos := 0
	for _, ap := range combo.applied {
		for _, c := range e.Combos {
			if c.ID != ap.ComboID {
				continue
			}
			for code, qty := range c.Required() {
				if e.GiftItemCodes[code] {
					usedInCombos += qty * ap.Applications
				}
			}
		}
	}

	available := giftQty - usedInCombos
	res := giftResult{}
	if available > 0 && haveGiftLine {
		if afterCombo-firstGiftPrice >= e.GiftThreshold {
			res.eligible = true
			res.discount = firstGiftPrice
		}
		res.amountNeeded = maxMoney(0, e.GiftThreshold-(afterCombo-firstGiftPrice))
	} else {
		res.amountNeeded = maxMoney(0, e.GiftThreshold-afterCombo)
	}
	return res
}

func aggregateByCode(lines []Line) map[int]int {
	counts := make(map[int]int, len(lines))
	for _, ln := range lines {
		if ln.Qty <= 0 {
			continue
		}
		counts[ln.ItemCode] += ln.Qty
	}
	return counts
}

func maxApplications(required map[int]int, quantities map[int]int) int {
	max := -1
	for code, qty := range required {
		if qty <= 0 {
			continue
		}
		n := quantities[code] / qty
		if max < 0 || n < max {
			max = n
		}
	}
	if max < 0 {
		return 0
	}
	return max
}

func copyCounts(src map[int]int) map[int]int {
	dst := make(map[int]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func maxMoney(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}
