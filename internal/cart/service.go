package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/ckmerch/backend-store/internal/catalog"
	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/pricing"
)

// View is a cart rendered with catalog data and a live pricing quote.
type View struct {
	AccountID string        `json:"accountId"`
	Lines     []ViewLine    `json:"lines"`
	Quote     pricing.Quote `json:"quote"`
}

// ViewLine joins a stored cart line with its catalog entry.
type ViewLine struct {
	SKU       string        `json:"sku"`
	Name      string        `json:"name"`
	ItemCode  int           `json:"itemCode"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Qty       int           `json:"qty"`
	Subtotal  pricing.Money `json:"subtotal"`
}

// Service implements cart mutation and quoting on top of the Redis store.
type Service struct {
	Store   *Store
	Catalog *catalog.Catalog
	Engine  pricing.Engine
}

// Get returns the account's cart with a freshly computed quote.
func (s *Service) Get(ctx context.Context, accountID string) (View, error) {
	doc, err := s.Store.Get(ctx, accountID)
	if err != nil {
		return View{}, err
	}
	return s.render(doc)
}

// AddItem adds qty units of a SKU, merging with an existing line for the
// same SKU. The quantity added must be positive.
func (s *Service) AddItem(ctx context.Context, accountID, sku string, qty int) (View, error) {
	if qty <= 0 {
		return View{}, fmt.Errorf("qty must be positive: %w", common.ErrInvalidInput)
	}
	if _, ok := s.Catalog.Lookup(sku); !ok {
		return View{}, fmt.Errorf("unknown sku %q: %w", sku, common.ErrInvalidInput)
	}
	doc, err := s.Store.Get(ctx, accountID)
	if err != nil {
		return View{}, err
	}
	merged := false
	for i := range doc.Lines {
		if doc.Lines[i].SKU == sku {
			doc.Lines[i].Qty += qty
			merged = true
			break
		}
	}
	if !merged {
		doc.Lines = append(doc.Lines, Line{SKU: sku, Qty: qty, AddedAt: time.Now().UTC()})
	}
	if err := s.Store.Put(ctx, doc); err != nil {
		return View{}, err
	}
	return s.render(doc)
}

// SetQty sets the quantity of an existing line. Zero removes the line;
// negative quantities are rejected.
func (s *Service) SetQty(ctx context.Context, accountID, sku string, qty int) (View, error) {
	if qty < 0 {
		return View{}, fmt.Errorf("qty must not be negative: %w", common.ErrInvalidInput)
	}
	doc, err := s.Store.Get(ctx, accountID)
	if err != nil {
		return View{}, err
	}
	idx := -1
	for i := range doc.Lines {
		if doc.Lines[i].SKU == sku {
			idx = i
			break
		}
	}
	if idx < 0 {
		return View{}, fmt.Errorf("sku %q not in cart: %w", sku, common.ErrNotFound)
	}
	if qty == 0 {
		doc.Lines = append(doc.Lines[:idx], doc.Lines[idx+1:]...)
	} else {
		doc.Lines[idx].Qty = qty
	}
	if err := s.Store.Put(ctx, doc); err != nil {
		return View{}, err
	}
	return s.render(doc)
}

// RemoveItem drops a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, accountID, sku string) (View, error) {
	return s.SetQty(ctx, accountID, sku, 0)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, accountID string) error {
	return s.Store.Delete(ctx, accountID)
}

// PricingLines converts a stored cart into pricing engine input, preserving
// insertion order. Lines whose SKU has vanished from the catalog are skipped.
func (s *Service) PricingLines(doc Doc) []pricing.Line {
	out := make([]pricing.Line, 0, len(doc.Lines))
	for _, ln := range doc.Lines {
		it, ok := s.Catalog.Lookup(ln.SKU)
		if !ok {
			continue
		}
		out = append(out, pricing.Line{
			SKU:       it.SKU,
			ItemCode:  it.Code,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Qty:       ln.Qty,
		})
	}
	return out
}

func (s *Service) render(doc Doc) (View, error) {
	view := View{AccountID: doc.AccountID, Lines: make([]ViewLine, 0, len(doc.Lines))}
	for _, ln := range doc.Lines {
		it, ok := s.Catalog.Lookup(ln.SKU)
		if !ok {
			continue
		}
		view.Lines = append(view.Lines, ViewLine{
			SKU:       it.SKU,
			Name:      it.Name,
			ItemCode:  it.Code,
			UnitPrice: it.UnitPrice,
			Qty:       ln.Qty,
			Subtotal:  it.UnitPrice * pricing.Money(ln.Qty),
		})
	}
	view.Quote = s.Engine.Quote(s.PricingLines(doc), false)
	return view, nil
}
