package ports

import (
	"context"
	"time"

	"capmatch/internal/domain"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errString("not found")

// ErrClaimCodeConflict is returned by CreateRequests when a generated claim
// code collides with an existing one. Callers mint fresh codes and retry.
var ErrClaimCodeConflict = errString("claim code conflict")

type errString string

func (e errString) Error() string { return string(e) }

// CandidateRepository reads deals and candidate profiles.
type CandidateRepository interface {
	GetDeal(ctx context.Context, id string) (domain.Deal, error)
	ListActiveCandidates(ctx context.Context, t domain.RecipientType) ([]domain.CandidateProfile, error)
	GetCandidate(ctx context.Context, t domain.RecipientType, id string) (domain.CandidateProfile, error)
	// ResolveOrganization maps a raw identifier to a canonical organization
	// id, trying the organization-id field first, then the row id.
	ResolveOrganization(ctx context.Context, rawID string) (string, error)
}

// OutreachRepository manages match request records.
type OutreachRepository interface {
	// CountActive counts requests for (deal, type) whose effective status at
	// now is pending or accepted.
	CountActive(ctx context.Context, dealID string, t domain.RecipientType, now time.Time) (int, error)
	// FindExisting returns targetID -> claim code for every requested target
	// that already has a record for (deal, type).
	FindExisting(ctx context.Context, dealID string, t domain.RecipientType, targetIDs []string) (map[string]string, error)
	// CreateRequests inserts all records in one transaction; the batch is
	// all-or-nothing. A claim-code uniqueness violation surfaces as
	// ErrClaimCodeConflict.
	CreateRequests(ctx context.Context, reqs []domain.MatchRequest) error
}

// UserDirectory reads user accounts and delivers in-app notifications.
type UserDirectory interface {
	ListActiveUsers(ctx context.Context, orgID string) ([]domain.User, error)
	NotifyUsers(ctx context.Context, userIDs []string, n domain.Notification) error
}

// ChannelProvisioner sets up the shared communication channel between a
// sponsor's and a target's user sets. Both operations are idempotent: an
// existing channel for the same deal and org pair is reused, and membership
// upserts are safe to repeat.
type ChannelProvisioner interface {
	EnsureDealChannel(ctx context.Context, dealID, sponsorOrgID, targetOrgID string) (channelID string, err error)
	UpsertMembers(ctx context.Context, channelID string, userIDs []string) error
}

// AuditSink appends audit events.
type AuditSink interface {
	Append(ctx context.Context, ev domain.AuditEvent) error
}
