package outreach

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capmatch/internal/domain"
	"capmatch/internal/ports"
)

// fakeCandidates backs the candidate repository with maps.
type fakeCandidates struct {
	deals      map[string]domain.Deal
	candidates map[string]domain.CandidateProfile // keyed by row id
	orgAliases map[string]string                  // rawID -> orgID; missing means unresolved
}

func (f *fakeCandidates) GetDeal(_ context.Context, id string) (domain.Deal, error) {
	d, ok := f.deals[id]
	if !ok {
		return domain.Deal{}, ports.ErrNotFound
	}
	return d, nil
}

func (f *fakeCandidates) ListActiveCandidates(_ context.Context, t domain.RecipientType) ([]domain.CandidateProfile, error) {
	var out []domain.CandidateProfile
	for _, c := range f.candidates {
		if c.Type == t && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCandidates) GetCandidate(_ context.Context, t domain.RecipientType, id string) (domain.CandidateProfile, error) {
	c, ok := f.candidates[id]
	if !ok || c.Type != t {
		return domain.CandidateProfile{}, ports.ErrNotFound
	}
	return c, nil
}

func (f *fakeCandidates) ResolveOrganization(_ context.Context, rawID string) (string, error) {
	if org, ok := f.orgAliases[rawID]; ok {
		return org, nil
	}
	return "", ports.ErrNotFound
}

// fakeLedger stores match requests in memory.
type fakeLedger struct {
	records        []domain.MatchRequest
	conflictsLeft  int // CreateRequests returns ErrClaimCodeConflict this many times
	createAttempts int
}

func (f *fakeLedger) CountActive(_ context.Context, dealID string, t domain.RecipientType, now time.Time) (int, error) {
	n := 0
	for _, r := range f.records {
		if r.DealID == dealID && r.TargetType == t {
			if s := r.EffectiveStatus(now); s == domain.StatusPending || s == domain.StatusAccepted {
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeLedger) FindExisting(_ context.Context, dealID string, t domain.RecipientType, targetIDs []string) (map[string]string, error) {
	want := map[string]bool{}
	for _, id := range targetIDs {
		want[id] = true
	}
	out := map[string]string{}
	for _, r := range f.records {
		if r.DealID == dealID && r.TargetType == t && want[r.TargetID] {
			out[r.TargetID] = r.ClaimCode
		}
	}
	return out, nil
}

func (f *fakeLedger) CreateRequests(_ context.Context, reqs []domain.MatchRequest) error {
	f.createAttempts++
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return ports.ErrClaimCodeConflict
	}
	f.records = append(f.records, reqs...)
	return nil
}

// fakeDispatcher reports a configurable status per recipient and records its
// input.
type fakeDispatcher struct {
	statusFor func(item ports.DispatchItem) domain.DeliveryStatus
	lastInput ports.DispatchInput
	calls     int
}

func (f *fakeDispatcher) Dispatch(_ context.Context, in ports.DispatchInput) []domain.DeliveryResult {
	f.calls++
	f.lastInput = in
	out := make([]domain.DeliveryResult, len(in.Items))
	for i, item := range in.Items {
		status := domain.DeliverySent
		if f.statusFor != nil {
			status = f.statusFor(item)
		}
		out[i] = domain.DeliveryResult{RecipientID: item.RecipientID, RecipientType: in.Type, Status: status}
	}
	return out
}

type fakeAudit struct{ actions []string }

func (f *fakeAudit) Record(_, _, _, action string, _ any) { f.actions = append(f.actions, action) }

type fixture struct {
	svc        *Service
	candidates *fakeCandidates
	ledger     *fakeLedger
	dispatcher *fakeDispatcher
	audit      *fakeAudit
	clock      *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		candidates: &fakeCandidates{
			deals: map[string]domain.Deal{
				"deal-1": {ID: "deal-1", SponsorID: "sponsor-1", SponsorOrgID: "org-sponsor", Name: "Riverfront Lofts", State: "OH", ProgramTypes: []string{"NMTC"}},
			},
			candidates: map[string]domain.CandidateProfile{
				"cde-1": {ID: "cde-1", OrgID: "org-a", Type: domain.RecipientCDE, Name: "First CDE", ContactEmail: "a@cde.test", Active: true},
				"cde-2": {ID: "cde-2", OrgID: "org-b", Type: domain.RecipientCDE, Name: "Second CDE", ContactEmail: "b@cde.test", Active: true},
				"cde-3": {ID: "cde-3", OrgID: "org-c", Type: domain.RecipientCDE, Name: "Third CDE", ContactEmail: "c@cde.test", Active: true},
				"cde-4": {ID: "cde-4", OrgID: "org-d", Type: domain.RecipientCDE, Name: "Fourth CDE", ContactEmail: "d@cde.test", Active: true},
			},
			orgAliases: map[string]string{"cde-1": "org-a", "cde-2": "org-b", "cde-3": "org-c", "cde-4": "org-d"},
		},
		ledger:     &fakeLedger{},
		dispatcher: &fakeDispatcher{},
		audit:      &fakeAudit{},
		clock:      clockwork.NewFakeClock(),
	}
	f.svc = New(f.candidates, f.ledger, f.dispatcher, f.audit, f.clock, nil, time.Minute)
	return f
}

func input(recipients ...string) ports.CreateOutreachInput {
	return ports.CreateOutreachInput{
		SponsorID:    "sponsor-1",
		DealID:       "deal-1",
		RecipientIDs: recipients,
		Type:         domain.RecipientCDE,
		Sender:       domain.Sender{Name: "Dana", OrgName: "Sponsor LLC"},
	}
}

func TestCreateOutreachFresh(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.CreateOutreach(context.Background(), input("cde-1"))
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 0, out.Skipped)
	assert.Equal(t, 1, out.Sent)
	assert.Equal(t, 0, out.Failed)

	require.Len(t, f.ledger.records, 1)
	rec := f.ledger.records[0]
	assert.Equal(t, domain.StatusPending, rec.Status)
	assert.Equal(t, "org-a", rec.TargetOrgID)
	assert.Len(t, rec.ClaimCode, 8)
	assert.Equal(t, f.clock.Now().UTC(), rec.RequestedAt)

	// The dispatcher must see the freshly minted code.
	require.Len(t, f.dispatcher.lastInput.Items, 1)
	assert.Equal(t, rec.ClaimCode, f.dispatcher.lastInput.Items[0].ClaimCode)

	assert.Equal(t, []string{"outreach.create"}, f.audit.actions)
}

func TestCreateOutreachIdempotentRepeat(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.CreateOutreach(context.Background(), input("cde-1", "cde-2"))
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	codes := map[string]string{}
	for _, r := range f.ledger.records {
		codes[r.TargetID] = r.ClaimCode
	}

	second, err := f.svc.CreateOutreach(context.Background(), input("cde-1", "cde-2"))
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 2, second.Sent)
	assert.Len(t, f.ledger.records, 2, "repeat must not create duplicate records")
	assert.Contains(t, second.Message, "already invited")

	// Same claim codes reused for the resend.
	for _, item := range f.dispatcher.lastInput.Items {
		assert.Equal(t, codes[item.RecipientID], item.ClaimCode)
	}
}

func TestCreateOutreachPartitionAndOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOutreach(context.Background(), input("cde-2"))
	require.NoError(t, err)

	out, err := f.svc.CreateOutreach(context.Background(), input("cde-1", "cde-2", "cde-3"))
	require.NoError(t, err)

	assert.Equal(t, 2, out.Created)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, 3, out.Sent+out.Failed, "every requested recipient is accounted for")

	// Dispatch order follows request order regardless of partition.
	var got []string
	for _, item := range f.dispatcher.lastInput.Items {
		got = append(got, item.RecipientID)
	}
	assert.Equal(t, []string{"cde-1", "cde-2", "cde-3"}, got)
}

func TestCreateOutreachQuotaRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOutreach(context.Background(), input("cde-1", "cde-2"))
	require.NoError(t, err)
	dispatchCalls := f.dispatcher.calls

	_, err = f.svc.CreateOutreach(context.Background(), input("cde-3", "cde-4"))
	var qe *QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 1, qe.Remaining)
	assert.Len(t, f.ledger.records, 2, "rejection must happen before any write")
	assert.Equal(t, dispatchCalls, f.dispatcher.calls, "nothing dispatched on rejection")
}

func TestQuotaInvariantNeverExceeded(t *testing.T) {
	f := newFixture(t)
	ids := []string{"cde-1", "cde-2", "cde-3", "cde-4"}
	for _, id := range ids {
		_, _ = f.svc.CreateOutreach(context.Background(), input(id))
	}
	n, err := f.ledger.CountActive(context.Background(), "deal-1", domain.RecipientCDE, f.clock.Now())
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 3)
}

func TestQuotaIgnoresExpiredPending(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOutreach(context.Background(), input("cde-1", "cde-2", "cde-3"))
	require.NoError(t, err)

	// A pending request past the claim TTL reads as expired and frees its
	// slot without any persisted transition.
	f.clock.Advance(domain.PendingTTL + time.Hour)

	out, err := f.svc.CreateOutreach(context.Background(), input("cde-4"))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Created)
}

func TestCreateOutreachNothingDelivered(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.statusFor = func(ports.DispatchItem) domain.DeliveryStatus {
		return domain.DeliveryProviderError
	}

	out, err := f.svc.CreateOutreach(context.Background(), input("cde-1", "cde-2"))
	require.ErrorIs(t, err, ErrNothingDelivered)

	// Records were created; the caller still sees the full accounting.
	assert.Equal(t, 2, out.Created)
	assert.Equal(t, 0, out.Sent)
	assert.Equal(t, 2, out.Failed)
	require.Len(t, out.Results, 2)
}

func TestCreateOutreachPartialSuccess(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.statusFor = func(item ports.DispatchItem) domain.DeliveryStatus {
		if item.RecipientID == "cde-2" {
			return domain.DeliveryProviderError
		}
		return domain.DeliverySent
	}

	out, err := f.svc.CreateOutreach(context.Background(), input("cde-1", "cde-2"))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.True(t, out.PartialSuccess)
	assert.Equal(t, 1, out.Sent)
	assert.Equal(t, 1, out.Failed)
}

func TestCreateOutreachClaimCodeConflictRetries(t *testing.T) {
	f := newFixture(t)
	f.ledger.conflictsLeft = 2

	out, err := f.svc.CreateOutreach(context.Background(), input("cde-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 3, f.ledger.createAttempts)
}

func TestCreateOutreachUnknownRecipientNotWritten(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.statusFor = func(item ports.DispatchItem) domain.DeliveryStatus {
		if item.RecipientID == "ghost" {
			return domain.DeliveryRecipientNotFound
		}
		return domain.DeliverySent
	}

	out, err := f.svc.CreateOutreach(context.Background(), input("cde-1", "ghost"))
	require.NoError(t, err)

	assert.Equal(t, 1, out.Created, "no record for an id with no candidate row")
	assert.Equal(t, 1, out.Sent)
	assert.Equal(t, 1, out.Failed)
	require.Len(t, f.ledger.records, 1)
	assert.Equal(t, "cde-1", f.ledger.records[0].TargetID)

	// The unknown id still reaches the dispatcher so the caller gets its
	// recipient_not_found result.
	assert.Len(t, f.dispatcher.lastInput.Items, 2)
}

func TestCreateOutreachOrgFallbackVerbatim(t *testing.T) {
	f := newFixture(t)
	f.candidates.candidates["legacy-9"] = domain.CandidateProfile{
		ID: "legacy-9", Type: domain.RecipientCDE, Name: "Legacy CDE", ContactEmail: "l@cde.test", Active: true,
	}
	// No alias entry: organization resolution misses entirely.

	_, err := f.svc.CreateOutreach(context.Background(), input("legacy-9"))
	require.NoError(t, err)
	require.Len(t, f.ledger.records, 1)
	assert.Equal(t, "legacy-9", f.ledger.records[0].TargetOrgID)
}

func TestCreateOutreachAuthorization(t *testing.T) {
	f := newFixture(t)

	in := input("cde-1")
	in.SponsorID = "someone-else"
	_, err := f.svc.CreateOutreach(context.Background(), in)
	assert.ErrorIs(t, err, ErrNotDealSponsor)

	in = input("cde-1")
	in.DealID = "missing"
	_, err = f.svc.CreateOutreach(context.Background(), in)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	assert.Empty(t, f.ledger.records)
	assert.Zero(t, f.dispatcher.calls)
}

func TestCreateOutreachValidation(t *testing.T) {
	f := newFixture(t)

	cases := []ports.CreateOutreachInput{
		{SponsorID: "sponsor-1", DealID: "deal-1", Type: domain.RecipientCDE},                                      // no recipients
		{SponsorID: "sponsor-1", DealID: "deal-1", RecipientIDs: []string{"cde-1"}, Type: "fund"},                  // bad type
		{SponsorID: "sponsor-1", RecipientIDs: []string{"cde-1"}, Type: domain.RecipientCDE},                       // no deal
		{DealID: "deal-1", RecipientIDs: []string{"cde-1"}, Type: domain.RecipientCDE},                             // no sponsor
		{SponsorID: "sponsor-1", DealID: "deal-1", RecipientIDs: []string{"", ""}, Type: domain.RecipientInvestor}, // blank ids
	}
	for _, in := range cases {
		_, err := f.svc.CreateOutreach(context.Background(), in)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, "input %+v", in)
	}
	assert.Zero(t, f.dispatcher.calls)
}

func TestCreateOutreachCollapsesDuplicateIDs(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.CreateOutreach(context.Background(), input("cde-1", "cde-1", "cde-2"))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Created)
	assert.Len(t, f.dispatcher.lastInput.Items, 2)
}
