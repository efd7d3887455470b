package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"

	"capmatch/internal/domain"
	"capmatch/internal/ports"
)

// ErrNotDealSponsor indicates the caller does not own the deal.
var ErrNotDealSponsor = errString("caller is not the deal sponsor")

type errString string

func (e errString) Error() string { return string(e) }

// maxActiveRequests is the per-(sponsor, deal, type) cap on active outreach.
const maxActiveRequests = 3

// Service ranks candidates for a deal.
type Service struct {
	candidates ports.CandidateRepository
	outreach   ports.OutreachRepository
	blacklist  []string
	clock      clockwork.Clock
}

// New builds a matching service. blacklist holds case-insensitive name
// substrings to exclude from results.
func New(candidates ports.CandidateRepository, outreach ports.OutreachRepository, blacklist []string, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{candidates: candidates, outreach: outreach, blacklist: blacklist, clock: clock}
}

// ListCandidates fetches, deduplicates, filters, scores, and sorts active
// candidates of the requested type(s), and attaches remaining outreach slots
// per type. typeFilter is "cde", "investor", "both", or "".
func (s *Service) ListCandidates(ctx context.Context, sponsorID, dealID string, typeFilter string) (ports.ListCandidatesOutput, error) {
	var out ports.ListCandidatesOutput

	deal, err := s.candidates.GetDeal(ctx, dealID)
	if err != nil {
		return out, err
	}
	if deal.SponsorID != sponsorID {
		return out, ErrNotDealSponsor
	}

	wantCDE, wantInvestor := wantTypes(typeFilter)
	now := s.clock.Now()

	if wantCDE {
		ranked, err := s.rank(ctx, deal, domain.RecipientCDE)
		if err != nil {
			return out, err
		}
		out.CDEs = ranked
	}
	if wantInvestor {
		ranked, err := s.rank(ctx, deal, domain.RecipientInvestor)
		if err != nil {
			return out, err
		}
		out.Investors = ranked
	}

	cdeActive, err := s.outreach.CountActive(ctx, dealID, domain.RecipientCDE, now)
	if err != nil {
		return out, fmt.Errorf("count active cde outreach: %w", err)
	}
	invActive, err := s.outreach.CountActive(ctx, dealID, domain.RecipientInvestor, now)
	if err != nil {
		return out, fmt.Errorf("count active investor outreach: %w", err)
	}
	// May go negative when a deal is already over quota.
	out.Limits.CDE = maxActiveRequests - cdeActive
	out.Limits.Investor = maxActiveRequests - invActive

	return out, nil
}

func (s *Service) rank(ctx context.Context, deal domain.Deal, t domain.RecipientType) ([]ports.RankedCandidate, error) {
	all, err := s.candidates.ListActiveCandidates(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("list %s candidates: %w", t, err)
	}

	// One CDE organization appears once per allocation year; keep the first
	// row per organization id.
	seen := make(map[string]bool, len(all))
	ranked := make([]ports.RankedCandidate, 0, len(all))
	for _, c := range all {
		orgID := c.OrganizationID()
		if seen[orgID] {
			continue
		}
		seen[orgID] = true
		if s.blacklisted(c.Name) {
			continue
		}
		score, reasons := Score(deal, c)
		ranked = append(ranked, ports.RankedCandidate{
			ID:             c.ID,
			OrgID:          orgID,
			Name:           c.Name,
			State:          c.GeoFocus,
			Programs:       c.Programs,
			AllocationYear: c.AllocationYear,
			Score:          score,
			Reasons:        reasons,
		})
	}

	// Stable keeps repository order for ties, so identical inputs always
	// produce identical rankings.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}

func (s *Service) blacklisted(name string) bool {
	for _, b := range s.blacklist {
		if b != "" && strings.Contains(strings.ToLower(name), strings.ToLower(b)) {
			return true
		}
	}
	return false
}

func wantTypes(filter string) (cde, investor bool) {
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "cde":
		return true, false
	case "investor":
		return false, true
	default: // "both" or unset
		return true, true
	}
}
