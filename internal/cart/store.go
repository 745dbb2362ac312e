package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Line is a single cart entry. Lines keep insertion order; the first line in
// the gift category determines which gift price applies at quote time.
type Line struct {
	SKU     string    `json:"sku"`
	Qty     int       `json:"qty"`
	AddedAt time.Time `json:"addedAt"`
}

// Doc is the stored cart document for one account.
type Doc struct {
	AccountID string    `json:"accountId"`
	Lines     []Line    `json:"lines"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists cart documents in Redis, one key per account, refreshed on
// every write so abandoned carts age out.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func cartKey(accountID string) string {
	return "cart:" + accountID
}

// Get returns the cart for an account. A missing key yields an empty cart.
func (s *Store) Get(ctx context.Context, accountID string) (Doc, error) {
	raw, err := s.R.Get(ctx, cartKey(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Doc{AccountID: accountID}, nil
	}
	if err != nil {
		return Doc{}, fmt.Errorf("cart get: %w", err)
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Doc{}, fmt.Errorf("cart decode: %w", err)
	}
	doc.AccountID = accountID
	return doc, nil
}

// Put replaces the cart document and resets its TTL.
func (s *Store) Put(ctx context.Context, doc Doc) error {
	doc.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cart encode: %w", err)
	}
	if err := s.R.Set(ctx, cartKey(doc.AccountID), raw, s.TTL).Err(); err != nil {
		return fmt.Errorf("cart put: %w", err)
	}
	return nil
}

// Delete removes the cart document entirely.
func (s *Store) Delete(ctx context.Context, accountID string) error {
	if err := s.R.Del(ctx, cartKey(accountID)).Err(); err != nil {
		return fmt.Errorf("cart delete: %w", err)
	}
	return nil
}
