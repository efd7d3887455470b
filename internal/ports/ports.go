package ports

import (
	"context"

	"capmatch/internal/domain"
)

// CreateOutreachInput is the orchestrator's request shape.
type CreateOutreachInput struct {
	SponsorID    string
	DealID       string
	RecipientIDs []string
	Type         domain.RecipientType
	Message      string
	Sender       domain.Sender
}

// CreateOutreachOutput is the full accounting returned for every processed
// call, including delivery-failure responses.
type CreateOutreachOutput struct {
	Success        bool                    `json:"success"`
	PartialSuccess bool                    `json:"partialSuccess"`
	Created        int                     `json:"created"`
	Skipped        int                     `json:"skipped"`
	Sent           int                     `json:"sent"`
	Failed         int                     `json:"failed"`
	Results        []domain.DeliveryResult `json:"results"`
	Message        string                  `json:"message"`
}

// RankedCandidate is one scored candidate in a ListCandidates response.
type RankedCandidate struct {
	ID             string   `json:"id"`
	OrgID          string   `json:"orgId"`
	Name           string   `json:"name"`
	State          []string `json:"geoFocus,omitempty"`
	Programs       []string `json:"programs,omitempty"`
	AllocationYear int      `json:"allocationYear,omitempty"`
	Score          int      `json:"score"`
	Reasons        []string `json:"reasons"`
}

// ListCandidatesOutput carries ranked candidates per requested type plus the
// remaining outreach slots per type (3 minus active count; may be negative).
type ListCandidatesOutput struct {
	CDEs      []RankedCandidate `json:"cdes,omitempty"`
	Investors []RankedCandidate `json:"investors,omitempty"`
	Limits    struct {
		CDE      int `json:"cde"`
		Investor int `json:"investor"`
	} `json:"limits"`
}

// Outreach creates quota-limited, idempotent outreach to scored candidates.
type Outreach interface {
	CreateOutreach(ctx context.Context, in CreateOutreachInput) (CreateOutreachOutput, error)
}

// Matching ranks candidates for a deal.
type Matching interface {
	ListCandidates(ctx context.Context, sponsorID, dealID string, typeFilter string) (ListCandidatesOutput, error)
}
