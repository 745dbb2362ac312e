package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists audit entries in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

const insertAuditSQL = `
INSERT INTO audit_logs (
	id, actor_kind, actor_account_id, action, resource_type, resource_id,
	method, path, route, status, ip, user_agent, request_id, metadata
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func (s *PGStore) InsertEntry(ctx context.Context, entry Entry) error {
	_, err := s.Pool.Exec(ctx, insertAuditSQL,
		entry.ID,
		entry.ActorKind,
		entry.ActorAccountID,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		entry.Method,
		entry.Path,
		entry.Route,
		entry.Status,
		entry.IP,
		entry.UserAgent,
		entry.RequestID,
		entry.Metadata,
	)
	return err
}

const listAuditSQL = `
SELECT id, actor_kind, actor_account_id, action, resource_type, resource_id,
       method, path, route, status, ip, user_agent, request_id, metadata, created_at
FROM audit_logs
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`

func (s *PGStore) ListEntries(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := s.Pool.Query(ctx, listAuditSQL, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.ActorKind, &e.ActorAccountID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Method, &e.Path, &e.Route, &e.Status, &e.IP, &e.UserAgent, &e.RequestID,
			&e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
