package domain

import "time"

// Core domain models used internally. API request/response shapes live in the
// HTTP adapter; keep these decoupled where helpful.

// RecipientType distinguishes the two kinds of capital-providing candidates.
type RecipientType string

const (
	RecipientCDE      RecipientType = "cde"
	RecipientInvestor RecipientType = "investor"
)

// Valid reports whether t is one of the known recipient types.
func (t RecipientType) Valid() bool {
	return t == RecipientCDE || t == RecipientInvestor
}

// GeoNational is the geographic-focus sentinel meaning "operates nationally".
const GeoNational = "US"

// Deal is a capital-seeking project owned by a sponsor organization.
type Deal struct {
	ID              string
	SponsorID       string
	SponsorOrgID    string
	Name            string
	State           string
	CensusTract     string
	ProgramTypes    []string // first element is the primary program
	RequestedAmount int64    // cents
	CreatedAt       time.Time
}

// PrimaryProgram returns the first program type, or "" when none is set.
func (d Deal) PrimaryProgram() string {
	if len(d.ProgramTypes) == 0 {
		return ""
	}
	return d.ProgramTypes[0]
}

// CandidateProfile is one row of a capital-providing organization. CDEs carry
// one row per allocation year, so several row IDs can map back to a single
// OrgID; identifier comparisons must go through organization resolution, never
// raw row IDs.
type CandidateProfile struct {
	ID               string // row id
	OrgID            string // logical organization id; may be empty on legacy rows
	Type             RecipientType
	Name             string
	ContactName      string
	ContactEmail     string
	GeoFocus         []string // state codes, or the GeoNational sentinel
	Programs         []string
	RemainingCapital int64 // cents
	Active           bool
	AllocationYear   int // CDE rows only
}

// OrganizationID returns the candidate's logical organization id, falling back
// to the row id when no organization id is recorded.
func (c CandidateProfile) OrganizationID() string {
	if c.OrgID != "" {
		return c.OrgID
	}
	return c.ID
}

// RequestStatus is the lifecycle status of a match request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusDeclined RequestStatus = "declined"
	StatusExpired  RequestStatus = "expired"
)

// PendingTTL is how long a pending match request stays claimable. Expiry is
// derived at read time; the stored status stays "pending".
const PendingTTL = 7 * 24 * time.Hour

// MatchRequest is the persisted invitation from a sponsor to a candidate for
// a specific deal. At most one exists per (deal, target type, target id);
// re-invites reuse the existing record and its claim code.
type MatchRequest struct {
	ID          string
	SponsorID   string
	DealID      string
	TargetType  RecipientType
	TargetID    string
	TargetOrgID string
	Message     string
	Status      RequestStatus
	ClaimCode   string
	RequestedAt time.Time
}

// EffectiveStatus derives the read-time status: a pending request older than
// PendingTTL reads as expired.
func (m MatchRequest) EffectiveStatus(now time.Time) RequestStatus {
	if m.Status == StatusPending && now.Sub(m.RequestedAt) > PendingTTL {
		return StatusExpired
	}
	return m.Status
}

// DeliveryStatus classifies the outcome of one recipient's delivery attempt.
type DeliveryStatus string

const (
	DeliverySent              DeliveryStatus = "sent"
	DeliveryProviderError     DeliveryStatus = "provider_error"
	DeliveryNoContactEmail    DeliveryStatus = "no_contact_email"
	DeliveryRecipientNotFound DeliveryStatus = "recipient_not_found"
	DeliveryProcessingError   DeliveryStatus = "processing_error"
)

// DeliveryResult is the transient per-recipient accounting entry returned from
// a dispatch pass. Not persisted.
type DeliveryResult struct {
	RecipientID       string         `json:"recipientId"`
	RecipientType     RecipientType  `json:"recipientType"`
	OrgID             string         `json:"orgId,omitempty"`
	OrgName           string         `json:"orgName,omitempty"`
	Email             string         `json:"email,omitempty"`
	Status            DeliveryStatus `json:"status"`
	ProviderMessageID string         `json:"providerMessageId,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// Sender identifies who is making an outreach call on behalf of a sponsor.
type Sender struct {
	UserID  string
	Name    string
	OrgName string
	Email   string
}

// User is a platform account associated with an organization. An organization
// with at least one active user is considered onboarded.
type User struct {
	ID     string
	OrgID  string
	Name   string
	Email  string
	Active bool
}

// Notification is an in-app message fanned out to onboarded organizations.
type Notification struct {
	Kind    string
	Title   string
	Body    string
	DealID  string
	LinkURL string
}

// AuditEvent is an append-only record of a significant action. Writes are
// best-effort and never block the primary operation.
type AuditEvent struct {
	ID         string
	Actor      string
	EntityType string
	EntityID   string
	Action     string
	Payload    []byte // JSON
	Hash       string // FNV-1a of Payload, tamper-evidence only
	CreatedAt  time.Time
}
