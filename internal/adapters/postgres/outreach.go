package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"capmatch/internal/domain"
	"capmatch/internal/ports"
)

// uniqueViolation is the postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// OutreachRepository

// CountActive counts requests whose effective status at now is pending or
// accepted: accepted rows always count, pending rows only inside the claim
// TTL (expiry is derived at read time, never persisted).
func (db *DB) CountActive(ctx context.Context, dealID string, t domain.RecipientType, now time.Time) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `
        SELECT count(*)
        FROM match_requests
        WHERE deal_id = $1 AND target_type = $2
          AND (status = 'accepted'
               OR (status = 'pending' AND requested_at > $3))
    `, dealID, t, now.Add(-domain.PendingTTL)).Scan(&n)
	return n, err
}

// FindExisting returns target id -> claim code for every requested target
// that already has a record for (deal, type), regardless of status.
func (db *DB) FindExisting(ctx context.Context, dealID string, t domain.RecipientType, targetIDs []string) (map[string]string, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT target_id, claim_code
        FROM match_requests
        WHERE deal_id = $1 AND target_type = $2 AND target_id = ANY($3)
    `, dealID, t, targetIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, code string
		if err := rows.Scan(&id, &code); err != nil {
			return nil, err
		}
		out[id] = code
	}
	return out, rows.Err()
}

// CreateRequests inserts the batch in one transaction, all-or-nothing. An
// advisory xact lock on (sponsor, deal, type) serializes concurrent writers
// for the same key on a single database; the quota read still happens outside
// this transaction, which is the accepted race documented in the service.
func (db *DB) CreateRequests(ctx context.Context, reqs []domain.MatchRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	first := reqs[0]
	if _, err = tx.Exec(ctx, `
        SELECT pg_advisory_xact_lock(hashtext($1))
    `, first.SponsorID+"/"+first.DealID+"/"+string(first.TargetType)); err != nil {
		return err
	}

	for _, r := range reqs {
		if _, err = tx.Exec(ctx, `
            INSERT INTO match_requests
                (id, sponsor_id, deal_id, target_type, target_id,
                 target_org_id, message, status, claim_code, requested_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        `, r.ID, r.SponsorID, r.DealID, r.TargetType, r.TargetID,
			r.TargetOrgID, r.Message, r.Status, r.ClaimCode, r.RequestedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation &&
				pgErr.ConstraintName == "match_requests_claim_code_key" {
				err = ports.ErrClaimCodeConflict
			}
			return err
		}
	}
	return nil
}
