package postgres

import (
	"context"

	"capmatch/internal/domain"
)

// AuditSink

func (db *DB) Append(ctx context.Context, ev domain.AuditEvent) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO audit_events (id, actor, entity_type, entity_id, action, payload, hash, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, ev.ID, ev.Actor, ev.EntityType, ev.EntityID, ev.Action, ev.Payload, ev.Hash, ev.CreatedAt)
	return err
}
