package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/pricing"
)

// Item is a priced order line frozen at checkout time.
type Item struct {
	SKU       string        `json:"sku"`
	ItemCode  int           `json:"itemCode"`
	Name      string        `json:"name"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Qty       int           `json:"qty"`
	Subtotal  pricing.Money `json:"subtotal"`
}

// Order is a submitted order with its pricing snapshot.
type Order struct {
	ID              uuid.UUID         `json:"id"`
	AccountID       string            `json:"accountId"`
	AccountEmail    string            `json:"accountEmail,omitempty"`
	ContactName     string            `json:"contactName,omitempty"`
	ContactPhone    string            `json:"contactPhone,omitempty"`
	Note            string            `json:"note,omitempty"`
	Status          Status            `json:"status"`
	Currency        string            `json:"currency"`
	Items           []Item            `json:"items,omitempty"`
	AppliedCombos   []pricing.Applied `json:"appliedCombos"`
	OriginalTotal   pricing.Money     `json:"originalTotal"`
	ComboDiscount   pricing.Money     `json:"comboDiscount"`
	GiftDiscount    pricing.Money     `json:"giftDiscount"`
	FinalTotal      pricing.Money     `json:"finalTotal"`
	OverrideApplied bool              `json:"overrideApplied"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Store persists orders in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

const insertOrderSQL = `
INSERT INTO orders (
	id, account_id, account_email, contact_name, contact_phone, note, status, currency,
	original_total, combo_discount, gift_discount, final_total,
	override_applied, applied_combos
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING created_at, updated_at`

const insertOrderItemSQL = `
INSERT INTO order_items (order_id, position, sku, item_code, name, unit_price, qty, subtotal)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Insert writes the order and its items in a single transaction.
func (s *Store) Insert(ctx context.Context, o *Order) error {
	combos, err := json.Marshal(o.AppliedCombos)
	if err != nil {
		return fmt.Errorf("encode applied combos: %w", err)
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.AccountID, o.AccountEmail, o.ContactName, o.ContactPhone, o.Note, o.Status, o.Currency,
		o.OriginalTotal, o.ComboDiscount, o.GiftDiscount, o.FinalTotal,
		o.OverrideApplied, combos,
	)
	if err := row.Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, insertOrderItemSQL,
			o.ID, i, it.SKU, it.ItemCode, it.Name, it.UnitPrice, it.Qty, it.Subtotal,
		); err != nil {
			return fmt.Errorf("insert order item %q: %w", it.SKU, err)
		}
	}
	return tx.Commit(ctx)
}

const selectOrderSQL = `
SELECT id, account_id, account_email, contact_name, contact_phone, note, status, currency,
       original_total, combo_discount, gift_discount, final_total,
       override_applied, applied_combos, created_at, updated_at
FROM orders`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		combos []byte
	)
	err := row.Scan(
		&o.ID, &o.AccountID, &o.AccountEmail, &o.ContactName, &o.ContactPhone, &o.Note, &o.Status, &o.Currency,
		&o.OriginalTotal, &o.ComboDiscount, &o.GiftDiscount, &o.FinalTotal,
		&o.OverrideApplied, &combos, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, common.ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("scan order: %w", err)
	}
	if len(combos) > 0 {
		if err := json.Unmarshal(combos, &o.AppliedCombos); err != nil {
			return Order{}, fmt.Errorf("decode applied combos: %w", err)
		}
	}
	return o, nil
}

// GetForAccount loads an order owned by the given account, items included.
func (s *Store) GetForAccount(ctx context.Context, id uuid.UUID, accountID string) (Order, error) {
	o, err := scanOrder(s.Pool.QueryRow(ctx, selectOrderSQL+" WHERE id = $1 AND account_id = $2", id, accountID))
	if err != nil {
		return Order{}, err
	}
	o.Items, err = s.listItems(ctx, id)
	return o, err
}

// Get loads any order by id, items included. Admin use.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	o, err := scanOrder(s.Pool.QueryRow(ctx, selectOrderSQL+" WHERE id = $1", id))
	if err != nil {
		return Order{}, err
	}
	o.Items, err = s.listItems(ctx, id)
	return o, err
}

func (s *Store) listItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT sku, item_code, name, unit_price, qty, subtotal
		 FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.SKU, &it.ItemCode, &it.Name, &it.UnitPrice, &it.Qty, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListForAccount returns the account's orders, newest first.
func (s *Store) ListForAccount(ctx context.Context, accountID string, limit, offset int) ([]Order, error) {
	return s.list(ctx, selectOrderSQL+" WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		accountID, limit, offset)
}

// CountForAccount returns the number of orders owned by the account.
func (s *Store) CountForAccount(ctx context.Context, accountID string) (int64, error) {
	var total int64
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE account_id = $1`, accountID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return total, nil
}

// ListAll returns orders across accounts, optionally filtered by status.
func (s *Store) ListAll(ctx context.Context, status Status, limit, offset int) ([]Order, error) {
	if status == "" {
		return s.list(ctx, selectOrderSQL+" ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	}
	return s.list(ctx, selectOrderSQL+" WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		status, limit, offset)
}

func (s *Store) list(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := s.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetStatus fetches only the current status of an order.
func (s *Store) GetStatus(ctx context.Context, id uuid.UUID) (Status, error) {
	var st Status
	err := s.Pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get order status: %w", err)
	}
	return st, nil
}

// UpdateStatus moves an order to the target status, re-checking the current
// state inside the statement so concurrent transitions cannot race.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s no longer in %s: %w", id, from, common.ErrConflict)
	}
	return nil
}
