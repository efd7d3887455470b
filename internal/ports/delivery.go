package ports

import (
	"context"

	"capmatch/internal/domain"
)

// DealSummary is the structured project description carried in outreach
// emails.
type DealSummary struct {
	DealID          string
	DealName        string
	State           string
	PrimaryProgram  string
	RequestedAmount string // pre-formatted, e.g. "$12,500,000"
}

// OutreachEmail is the common shape of both outreach email templates.
type OutreachEmail struct {
	ToName     string
	ToEmail    string
	FromName   string
	FromOrg    string
	Deal       DealSummary
	ClaimURL   string
	Message    string
	Attachment []byte // optional, e.g. a deal one-pager
}

// AllocationRequestEmail is the CDE template; it additionally carries the
// candidate's formatted remaining allocation figure.
type AllocationRequestEmail struct {
	OutreachEmail
	RemainingAllocation string
}

// InvestmentRequestEmail is the investor template.
type InvestmentRequestEmail struct {
	OutreachEmail
}

// EmailService sends tracked outreach emails. A nil error means the provider
// accepted the message; the returned id is the provider's message id.
type EmailService interface {
	SendAllocationRequest(ctx context.Context, msg AllocationRequestEmail) (id string, err error)
	SendInvestmentRequest(ctx context.Context, msg InvestmentRequestEmail) (id string, err error)
}

// DispatchItem is one recipient of a dispatch pass. ClaimCode is empty when
// no record exists for the recipient (it then gets the generic signup URL).
type DispatchItem struct {
	RecipientID string
	ClaimCode   string
}

// DispatchInput carries everything the dispatcher needs for one outreach
// call.
type DispatchInput struct {
	Deal    domain.Deal
	Type    domain.RecipientType
	Sender  domain.Sender
	Message string
	Items   []DispatchItem
}

// Dispatcher delivers one outreach call to its recipients. Results come back
// in item order regardless of completion order; per-recipient failures are
// isolated and reported in the result, never as an error.
type Dispatcher interface {
	Dispatch(ctx context.Context, in DispatchInput) []domain.DeliveryResult
}
