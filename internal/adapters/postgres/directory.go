package postgres

import (
	"context"

	"capmatch/internal/domain"
)

// UserDirectory

func (db *DB) ListActiveUsers(ctx context.Context, orgID string) ([]domain.User, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT id, org_id, name, email, active
        FROM users
        WHERE org_id = $1 AND active
    `, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.OrgID, &u.Name, &u.Email, &u.Active); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (db *DB) NotifyUsers(ctx context.Context, userIDs []string, n domain.Notification) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO notifications (user_id, kind, title, body, deal_id, link_url)
        SELECT unnest($1::text[]), $2, $3, $4, $5, $6
    `, userIDs, n.Kind, n.Title, n.Body, n.DealID, n.LinkURL)
	return err
}

// ChannelProvisioner

// EnsureDealChannel reuses a prior channel for the same (deal, sponsor,
// target) triple; the upsert makes repeat provisioning idempotent.
func (db *DB) EnsureDealChannel(ctx context.Context, dealID, sponsorOrgID, targetOrgID string) (string, error) {
	var id string
	err := db.Pool.QueryRow(ctx, `
        INSERT INTO channels (deal_id, sponsor_org_id, target_org_id)
        VALUES ($1, $2, $3)
        ON CONFLICT (deal_id, sponsor_org_id, target_org_id)
            DO UPDATE SET deal_id = EXCLUDED.deal_id
        RETURNING id
    `, dealID, sponsorOrgID, targetOrgID).Scan(&id)
	return id, err
}

// UpsertMembers adds users to a channel; repeats are no-ops under the
// (channel, user) primary key.
func (db *DB) UpsertMembers(ctx context.Context, channelID string, userIDs []string) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO channel_members (channel_id, user_id)
        SELECT $1, unnest($2::text[])
        ON CONFLICT (channel_id, user_id) DO NOTHING
    `, channelID, userIDs)
	return err
}
