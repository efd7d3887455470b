package outreach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"

	"capmatch/internal/domain"
	"capmatch/internal/metrics"
	"capmatch/internal/ports"
)

var (
	// ErrNotDealSponsor indicates the caller does not own the deal.
	ErrNotDealSponsor = errors.New("caller is not the deal sponsor")
	// ErrNothingDelivered indicates zero recipients were sent and zero were
	// already invited. Records may still have been created; the caller treats
	// this as a delivery failure.
	ErrNothingDelivered = errors.New("no recipients could be delivered")
)

// ValidationError rejects a request before any side effect occurs.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// auditRecorder appends a best-effort audit event. Implementations never
// block or fail the caller.
type auditRecorder interface {
	Record(actor, entityType, entityID, action string, payload any)
}

// Service orchestrates one CreateOutreach call: validate, authorize, dedup,
// quota-check, resolve organizations, write records, dispatch deliveries,
// audit, respond.
type Service struct {
	candidates ports.CandidateRepository
	outreach   ports.OutreachRepository
	dispatcher ports.Dispatcher
	audit      auditRecorder
	clock      clockwork.Clock
	log        *slog.Logger

	// dispatchTimeout bounds the whole delivery stage so one slow provider
	// call cannot stall the batch indefinitely.
	dispatchTimeout time.Duration
}

// New builds the outreach orchestrator.
func New(candidates ports.CandidateRepository, outreachRepo ports.OutreachRepository, dispatcher ports.Dispatcher, audit auditRecorder, clock clockwork.Clock, log *slog.Logger, dispatchTimeout time.Duration) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	if dispatchTimeout <= 0 {
		dispatchTimeout = 2 * time.Minute
	}
	return &Service{
		candidates:      candidates,
		outreach:        outreachRepo,
		dispatcher:      dispatcher,
		audit:           audit,
		clock:           clock,
		log:             log,
		dispatchTimeout: dispatchTimeout,
	}
}

// CreateOutreach invites the requested recipients to a deal. Validation,
// authorization, and quota failures return before any write; per-recipient
// delivery failures are isolated into the Results array. On
// ErrNothingDelivered the returned output is still fully populated.
func (s *Service) CreateOutreach(ctx context.Context, in ports.CreateOutreachInput) (ports.CreateOutreachOutput, error) {
	var out ports.CreateOutreachOutput

	recipientIDs, err := validate(in)
	if err != nil {
		return out, err
	}

	deal, err := s.candidates.GetDeal(ctx, in.DealID)
	if err != nil {
		return out, err
	}
	if deal.SponsorID != in.SponsorID {
		return out, ErrNotDealSponsor
	}

	// Partition into new vs already-invited before the quota check: only new
	// targets consume slots, which is what keeps full-batch re-invites
	// idempotent instead of quota-rejected.
	existing, err := s.outreach.FindExisting(ctx, deal.ID, in.Type, recipientIDs)
	if err != nil {
		return out, fmt.Errorf("find existing outreach: %w", err)
	}
	var newIDs []string
	for _, id := range recipientIDs {
		if _, ok := existing[id]; !ok {
			newIDs = append(newIDs, id)
		}
	}

	now := s.clock.Now().UTC()
	active, err := s.outreach.CountActive(ctx, deal.ID, in.Type, now)
	if err != nil {
		return out, fmt.Errorf("count active outreach: %w", err)
	}
	if err := checkQuota(active, len(newIDs)); err != nil {
		return out, err
	}

	created, codes, err := s.writeNew(ctx, deal, in, newIDs, now)
	if err != nil {
		return out, err
	}
	for id, code := range existing {
		codes[id] = code
	}

	items := make([]ports.DispatchItem, len(recipientIDs))
	for i, id := range recipientIDs {
		items[i] = ports.DispatchItem{RecipientID: id, ClaimCode: codes[id]}
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()
	results := s.dispatcher.Dispatch(dispatchCtx, ports.DispatchInput{
		Deal:    deal,
		Type:    in.Type,
		Sender:  in.Sender,
		Message: in.Message,
		Items:   items,
	})

	out.Created = created
	out.Skipped = len(existing)
	out.Results = results
	for _, r := range results {
		if r.Status == domain.DeliverySent {
			out.Sent++
		} else {
			out.Failed++
		}
		metrics.DeliveriesTotal.WithLabelValues(string(r.Status)).Inc()
	}
	metrics.OutreachCreated.Add(float64(out.Created))
	metrics.OutreachSkipped.Add(float64(out.Skipped))

	s.log.Info("outreach processed",
		"deal_id", deal.ID, "type", string(in.Type),
		"created", out.Created, "skipped", out.Skipped,
		"sent", out.Sent, "failed", out.Failed)

	s.audit.Record(in.SponsorID, "deal", deal.ID, "outreach.create", map[string]any{
		"recipientType":  string(in.Type),
		"recipientCount": len(recipientIDs),
		"created":        out.Created,
		"skipped":        out.Skipped,
		"sent":           out.Sent,
		"failed":         out.Failed,
	})

	switch {
	case out.Sent == 0 && out.Skipped == 0:
		out.Message = "outreach could not be delivered to any recipient"
		return out, ErrNothingDelivered
	case out.Failed > 0:
		out.PartialSuccess = out.Sent > 0
		out.Success = false
		out.Message = fmt.Sprintf("sent to %d of %d recipient(s)", out.Sent, len(recipientIDs))
	default:
		out.Success = true
		if out.Created == 0 {
			out.Message = fmt.Sprintf("all %d recipient(s) were already invited; claim links resent", out.Skipped)
		} else {
			out.Message = fmt.Sprintf("outreach sent to %d recipient(s)", out.Sent)
		}
	}
	return out, nil
}

// writeNew resolves organizations, mints claim codes, and inserts all new
// records in one all-or-nothing batch. Recipient ids with no candidate row
// are excluded here; the dispatcher reports them as recipient_not_found.
// Claim-code collisions re-mint and retry the batch.
func (s *Service) writeNew(ctx context.Context, deal domain.Deal, in ports.CreateOutreachInput, newIDs []string, now time.Time) (int, map[string]string, error) {
	codes := make(map[string]string, len(newIDs))
	var reqs []domain.MatchRequest

	for _, id := range newIDs {
		if _, err := s.candidates.GetCandidate(ctx, in.Type, id); err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				continue
			}
			return 0, nil, fmt.Errorf("load candidate %s: %w", id, err)
		}
		orgID, err := s.candidates.ResolveOrganization(ctx, id)
		if errors.Is(err, ports.ErrNotFound) {
			// Documented fallback, flagged for product review: a row with no
			// resolvable organization stores its raw id as the org id.
			orgID = id
		} else if err != nil {
			return 0, nil, fmt.Errorf("resolve organization %s: %w", id, err)
		}
		reqs = append(reqs, domain.MatchRequest{
			ID:          uuid.NewString(),
			SponsorID:   in.SponsorID,
			DealID:      deal.ID,
			TargetType:  in.Type,
			TargetID:    id,
			TargetOrgID: orgID,
			Message:     in.Message,
			Status:      domain.StatusPending,
			RequestedAt: now,
		})
	}
	if len(reqs) == 0 {
		return 0, codes, nil
	}

	// Insert under the claim-code unique constraint; a collision gets fresh
	// codes for the whole batch and retries.
	backoff := retry.WithMaxRetries(3, retry.NewConstant(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		for i := range reqs {
			code, err := NewClaimCode()
			if err != nil {
				return fmt.Errorf("issue claim code: %w", err)
			}
			reqs[i].ClaimCode = code
		}
		if err := s.outreach.CreateRequests(ctx, reqs); err != nil {
			if errors.Is(err, ports.ErrClaimCodeConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("create outreach records: %w", err)
	}
	for _, r := range reqs {
		codes[r.TargetID] = r.ClaimCode
	}
	return len(reqs), codes, nil
}

// validate checks required fields and collapses duplicate recipient ids,
// preserving first-occurrence order.
func validate(in ports.CreateOutreachInput) ([]string, error) {
	if in.DealID == "" {
		return nil, &ValidationError{Msg: "dealId is required"}
	}
	if in.SponsorID == "" {
		return nil, &ValidationError{Msg: "sponsor identity is required"}
	}
	if !in.Type.Valid() {
		return nil, &ValidationError{Msg: "recipientType must be cde or investor"}
	}
	seen := make(map[string]bool, len(in.RecipientIDs))
	var ids []string
	for _, id := range in.RecipientIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, &ValidationError{Msg: "at least one recipient id is required"}
	}
	return ids, nil
}
