package checkout

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ckmerch/backend-store/internal/cart"
	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/events"
	"github.com/ckmerch/backend-store/internal/obs"
	"github.com/ckmerch/backend-store/internal/order"
	"github.com/ckmerch/backend-store/internal/pricing"
)

// OrderStore is the slice of order persistence checkout needs.
type OrderStore interface {
	Insert(ctx context.Context, o *order.Order) error
}

// Privilege decides whether an account email may use the full-waiver override.
type Privilege func(email string) bool

// Locker serializes concurrent submits for the same account.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service turns a cart into a submitted order. The price the buyer saw in
// the cart is never trusted; the quote is recomputed from the stored cart at
// submit time.
type Service struct {
	Cart      *cart.Service
	Orders    OrderStore
	Bus       *events.Bus
	Engine    pricing.Engine
	Privilege Privilege
	Lock      Locker
	Currency  string
	Log       zerolog.Logger
}

// Result is the outcome of a successful checkout.
type Result struct {
	Order order.Order   `json:"order"`
	Quote pricing.Quote `json:"quote"`
}

// SubmitInput carries everything a checkout needs besides the stored cart.
type SubmitInput struct {
	AccountID    string
	AccountEmail string
	Override     bool
	ContactName  string
	ContactPhone string
	Note         string
}

// Submit validates the cart, reprices it and persists the order. The
// override flag is honored only for privileged accounts; unprivileged use is
// rejected outright rather than silently ignored. When a Locker is
// configured, submits for the same account run one at a time.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Result, error) {
	if s.Lock == nil {
		return s.submit(ctx, in)
	}
	var res Result
	err := s.Lock.WithLock(ctx, "checkout:"+in.AccountID, 10*time.Second, func(ctx context.Context) error {
		var submitErr error
		res, submitErr = s.submit(ctx, in)
		return submitErr
	})
	return res, err
}

func (s *Service) submit(ctx context.Context, in SubmitInput) (Result, error) {
	if in.Override && !s.privileged(in.AccountEmail) {
		return Result{}, fmt.Errorf("account %q may not waive payment: %w", in.AccountEmail, common.ErrForbidden)
	}
	doc, err := s.Cart.Store.Get(ctx, in.AccountID)
	if err != nil {
		return Result{}, err
	}
	lines := s.Cart.PricingLines(doc)
	if len(lines) == 0 {
		return Result{}, common.NewAppError("CART_EMPTY", "cart is empty", http.StatusConflict, nil)
	}
	quote := s.Engine.Quote(lines, in.Override)
	if obs.QuotesComputedTotal != nil {
		obs.QuotesComputedTotal.WithLabelValues("checkout").Inc()
	}

	ord := order.Order{
		ID:              uuid.New(),
		AccountID:       in.AccountID,
		AccountEmail:    in.AccountEmail,
		ContactName:     in.ContactName,
		ContactPhone:    in.ContactPhone,
		Note:            in.Note,
		Status:          order.StatusSubmitted,
		Currency:        s.Currency,
		Items:           orderItems(lines),
		AppliedCombos:   quote.AppliedCombos,
		OriginalTotal:   quote.OriginalTotal,
		ComboDiscount:   quote.ComboDiscountTotal,
		GiftDiscount:    quote.GiftDiscount,
		FinalTotal:      quote.FinalTotal,
		OverrideApplied: quote.OverrideApplied,
	}
	if err := s.Orders.Insert(ctx, &ord); err != nil {
		return Result{}, err
	}
	s.recordMetrics(quote)

	if err := s.Cart.Clear(ctx, in.AccountID); err != nil {
		// the order is already committed; a stale cart is recoverable
		s.Log.Warn().Err(err).Str("account_id", in.AccountID).Msg("clear cart after checkout")
	}
	if s.Bus != nil {
		if _, err := s.Bus.Emit(ctx, events.TopicOrderCreated, ord.ID, map[string]any{
			"orderId":    ord.ID.String(),
			"accountId":  in.AccountID,
			"finalTotal": ord.FinalTotal,
			"override":   ord.OverrideApplied,
		}); err != nil {
			s.Log.Warn().Err(err).Str("order_id", ord.ID.String()).Msg("emit order.created")
		}
	}
	return Result{Order: ord, Quote: quote}, nil
}

func (s *Service) privileged(email string) bool {
	if s.Privilege == nil {
		return false
	}
	return s.Privilege(email)
}

func (s *Service) recordMetrics(quote pricing.Quote) {
	if obs.OrdersSubmittedTotal != nil {
		label := "false"
		if quote.OverrideApplied {
			label = "true"
		}
		obs.OrdersSubmittedTotal.WithLabelValues(label).Inc()
	}
	if obs.ComboApplicationsTotal != nil {
		for _, ap := range quote.AppliedCombos {
			obs.ComboApplicationsTotal.WithLabelValues(ap.ComboID).Add(float64(ap.Applications))
		}
	}
	if obs.GiftGrantsTotal != nil && quote.GiftDiscount > 0 {
		obs.GiftGrantsTotal.Inc()
	}
}

func orderItems(lines []pricing.Line) []order.Item {
	items := make([]order.Item, 0, len(lines))
	for _, ln := range lines {
		items = append(items, order.Item{
			SKU:       ln.SKU,
			ItemCode:  ln.ItemCode,
			Name:      ln.Name,
			UnitPrice: ln.UnitPrice,
			Qty:       ln.Qty,
			Subtotal:  ln.UnitPrice * pricing.Money(ln.Qty),
		})
	}
	return items
}
