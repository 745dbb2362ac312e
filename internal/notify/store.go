package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/events"
)

// Endpoint is a registered webhook receiver.
type Endpoint struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Topics    []string  `json:"topics"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Delivery is one attempt-tracked webhook send.
type Delivery struct {
	ID             uuid.UUID `json:"id"`
	EndpointID     uuid.UUID `json:"endpointId"`
	EventID        uuid.UUID `json:"eventId"`
	Status         string    `json:"status"`
	Attempt        int       `json:"attempt"`
	MaxAttempt     int       `json:"maxAttempt"`
	NextAttemptAt  time.Time `json:"nextAttemptAt"`
	LastError      string    `json:"lastError,omitempty"`
	ResponseStatus int       `json:"responseStatus,omitempty"`
}

// Delivery statuses.
const (
	DeliveryPending    = "PENDING"
	DeliveryDelivering = "DELIVERING"
	DeliveryDelivered  = "DELIVERED"
	DeliveryFailed     = "FAILED"
	DeliveryDead       = "DEAD"
)

// Store defines the persistence operations required for webhook management.
type Store interface {
	CreateEndpoint(ctx context.Context, url, secret string, topics []string) (Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error)
	GetEndpoint(ctx context.Context, id uuid.UUID) (Endpoint, error)
	ListEndpoints(ctx context.Context) ([]Endpoint, error)
	DeleteEndpoint(ctx context.Context, id uuid.UUID) error
	ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error)

	EnqueueDelivery(ctx context.Context, endpointID, eventID uuid.UUID, maxAttempt int) (Delivery, error)
	DequeueDueDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, status int) error
	MarkFailedWithBackoff(ctx context.Context, id uuid.UUID, delay time.Duration, lastError string) error
	MarkDead(ctx context.Context, id uuid.UUID, reason string) error
	ListDeliveries(ctx context.Context, endpointID uuid.UUID, limit, offset int) ([]Delivery, error)

	GetEvent(ctx context.Context, id uuid.UUID) (events.Event, error)
}

// PGStore is the Postgres-backed Store.
type PGStore struct {
	Pool *pgxpool.Pool
}

const endpointColumns = `id, url, secret, topics, active, created_at`

func scanEndpoint(row pgx.Row) (Endpoint, error) {
	var ep Endpoint
	err := row.Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, common.ErrNotFound
	}
	if err != nil {
		return Endpoint{}, fmt.Errorf("scan endpoint: %w", err)
	}
	return ep, nil
}

// CreateEndpoint registers a receiver for the given topics.
func (s *PGStore) CreateEndpoint(ctx context.Context, url, secret string, topics []string) (Endpoint, error) {
	return scanEndpoint(s.Pool.QueryRow(ctx,
		`INSERT INTO webhook_endpoints (id, url, secret, topics, active)
		 VALUES ($1, $2, $3, $4, true)
		 RETURNING `+endpointColumns,
		uuid.New(), url, secret, topics))
}

// UpdateEndpoint replaces the mutable fields of an endpoint.
func (s *PGStore) UpdateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error) {
	return scanEndpoint(s.Pool.QueryRow(ctx,
		`UPDATE webhook_endpoints
		 SET url = $2, topics = $3, active = $4
		 WHERE id = $1
		 RETURNING `+endpointColumns,
		ep.ID, ep.URL, ep.Topics, ep.Active))
}

// GetEndpoint loads one endpoint by id.
func (s *PGStore) GetEndpoint(ctx context.Context, id uuid.UUID) (Endpoint, error) {
	return scanEndpoint(s.Pool.QueryRow(ctx,
		`SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1`, id))
}

// ListEndpoints returns all registered endpoints.
func (s *PGStore) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	return s.listEndpoints(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints ORDER BY created_at`)
}

// ListActiveEndpointsForTopic returns active endpoints subscribed to a topic.
func (s *PGStore) ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error) {
	return s.listEndpoints(ctx,
		`SELECT `+endpointColumns+` FROM webhook_endpoints WHERE active AND $1 = ANY(topics) ORDER BY created_at`,
		topic)
}

func (s *PGStore) listEndpoints(ctx context.Context, sql string, args ...any) ([]Endpoint, error) {
	rows, err := s.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()
	var out []Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// DeleteEndpoint removes an endpoint and its pending deliveries.
func (s *PGStore) DeleteEndpoint(ctx context.Context, id uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

const deliveryColumns = `id, endpoint_id, event_id, status, attempt, max_attempt, next_attempt_at,
	coalesce(last_error, ''), coalesce(response_status, 0)`

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.EndpointID, &d.EventID, &d.Status, &d.Attempt, &d.MaxAttempt,
		&d.NextAttemptAt, &d.LastError, &d.ResponseStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, common.ErrNotFound
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("scan delivery: %w", err)
	}
	return d, nil
}

// EnqueueDelivery inserts a pending delivery. The unique index on
// (endpoint_id, event_id) makes scheduling idempotent.
func (s *PGStore) EnqueueDelivery(ctx context.Context, endpointID, eventID uuid.UUID, maxAttempt int) (Delivery, error) {
	return scanDelivery(s.Pool.QueryRow(ctx,
		`INSERT INTO webhook_deliveries (id, endpoint_id, event_id, status, attempt, max_attempt, next_attempt_at)
		 VALUES ($1, $2, $3, $4, 0, $5, now())
		 RETURNING `+deliveryColumns,
		uuid.New(), endpointID, eventID, DeliveryPending, maxAttempt))
}

// deliveryLeaseWindow bounds how long a claimed row may sit in DELIVERING.
// A dispatcher that crashes between claiming and finishing leaves the row in
// DELIVERING forever; once the lease expires any dispatcher may reclaim it.
const deliveryLeaseWindow = 5 * time.Minute

const dequeueDeliveriesSQL = `UPDATE webhook_deliveries SET status = $1, attempt = attempt + 1, updated_at = now()
	 WHERE id IN (
		SELECT id FROM webhook_deliveries
		WHERE (status IN ($2, $3) AND next_attempt_at <= now())
		   OR (status = $1 AND updated_at < now() - $4::interval)
		ORDER BY next_attempt_at
		LIMIT $5
		FOR UPDATE SKIP LOCKED
	 )
	 RETURNING ` + deliveryColumns

// DequeueDueDeliveries claims due deliveries with SKIP LOCKED so concurrent
// dispatchers never grab the same row, marking them DELIVERING in one step.
// DELIVERING rows whose lease has lapsed are reclaimed alongside due ones.
func (s *PGStore) DequeueDueDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := s.Pool.Query(ctx, dequeueDeliveriesSQL,
		DeliveryDelivering, DeliveryPending, DeliveryFailed,
		fmt.Sprintf("%d seconds", int(deliveryLeaseWindow.Seconds())), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue deliveries: %w", err)
	}
	defer rows.Close()
	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkDelivered finalises a successful delivery.
func (s *PGStore) MarkDelivered(ctx context.Context, id uuid.UUID, status int) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE webhook_deliveries SET status = $2, response_status = $3, updated_at = now() WHERE id = $1`,
		id, DeliveryDelivered, status)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkFailedWithBackoff schedules a retry after the delay.
func (s *PGStore) MarkFailedWithBackoff(ctx context.Context, id uuid.UUID, delay time.Duration, lastError string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE webhook_deliveries
		 SET status = $2, last_error = $3, next_attempt_at = now() + $4::interval, updated_at = now()
		 WHERE id = $1`,
		id, DeliveryFailed, lastError, fmt.Sprintf("%d seconds", int(delay.Seconds())))
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// MarkDead parks a delivery that exhausted its attempts.
func (s *PGStore) MarkDead(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE webhook_deliveries SET status = $2, last_error = $3, updated_at = now() WHERE id = $1`,
		id, DeliveryDead, reason)
	if err != nil {
		return fmt.Errorf("mark dead: %w", err)
	}
	return nil
}

// ListDeliveries returns recent deliveries for an endpoint.
func (s *PGStore) ListDeliveries(ctx context.Context, endpointID uuid.UUID, limit, offset int) ([]Delivery, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries
		 WHERE endpoint_id = $1 ORDER BY next_attempt_at DESC LIMIT $2 OFFSET $3`,
		endpointID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()
	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetEvent loads the domain event a delivery refers to.
func (s *PGStore) GetEvent(ctx context.Context, id uuid.UUID) (events.Event, error) {
	var ev events.Event
	err := s.Pool.QueryRow(ctx,
		`SELECT id, topic, aggregate_id, payload, occurred_at FROM domain_events WHERE id = $1`, id).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return events.Event{}, common.ErrNotFound
	}
	if err != nil {
		return events.Event{}, fmt.Errorf("get domain event: %w", err)
	}
	return ev, nil
}
