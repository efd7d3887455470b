package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"capmatch/internal/domain"
	"capmatch/internal/ports"
)

// CandidateRepository

func (db *DB) GetDeal(ctx context.Context, id string) (domain.Deal, error) {
	var d domain.Deal
	err := db.Pool.QueryRow(ctx, `
        SELECT id, sponsor_id, sponsor_org_id, name, state, census_tract,
               program_types, requested_amount, created_at
        FROM deals WHERE id = $1
    `, id).Scan(&d.ID, &d.SponsorID, &d.SponsorOrgID, &d.Name, &d.State,
		&d.CensusTract, &d.ProgramTypes, &d.RequestedAmount, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, ports.ErrNotFound
	}
	return d, err
}

const candidateColumns = `
        id, COALESCE(org_id, ''), type, name, contact_name, contact_email,
        geo_focus, programs, remaining_capital, COALESCE(active, true),
        allocation_year`

func scanCandidate(row pgx.Row) (domain.CandidateProfile, error) {
	var c domain.CandidateProfile
	err := row.Scan(&c.ID, &c.OrgID, &c.Type, &c.Name, &c.ContactName,
		&c.ContactEmail, &c.GeoFocus, &c.Programs, &c.RemainingCapital,
		&c.Active, &c.AllocationYear)
	return c, err
}

func (db *DB) ListActiveCandidates(ctx context.Context, t domain.RecipientType) ([]domain.CandidateProfile, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT `+candidateColumns+`
        FROM candidates
        WHERE type = $1 AND COALESCE(active, true)
        ORDER BY name, allocation_year
    `, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CandidateProfile
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) GetCandidate(ctx context.Context, t domain.RecipientType, id string) (domain.CandidateProfile, error) {
	c, err := scanCandidate(db.Pool.QueryRow(ctx, `
        SELECT `+candidateColumns+`
        FROM candidates WHERE type = $1 AND id = $2
    `, t, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return c, ports.ErrNotFound
	}
	return c, err
}

// ResolveOrganization maps a raw identifier to a canonical organization id:
// the org_id column wins, then a row whose id matches, then not found.
func (db *DB) ResolveOrganization(ctx context.Context, rawID string) (string, error) {
	var orgID string
	err := db.Pool.QueryRow(ctx, `
        SELECT COALESCE(NULLIF(org_id, ''), id)
        FROM candidates
        WHERE org_id = $1 OR id = $1
        ORDER BY (org_id = $1) DESC
        LIMIT 1
    `, rawID).Scan(&orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ports.ErrNotFound
	}
	return orgID, err
}
