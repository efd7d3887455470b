package matching

import (
	"fmt"
	"strings"

	"capmatch/internal/domain"
)

// Scoring is pure and total: any well-formed (deal, candidate) pair produces
// a deterministic integer, missing fields score as "no match", and nothing
// here does I/O. Both scales are points out of 100.

// CDE weights.
const (
	cdeStateMatch    = 60
	cdeNationalFocus = 30
	cdeCapital       = 40
	cdeSector        = 0 // reserved criterion, not yet implemented
)

// Investor weights.
const (
	invProgramOverlap = 50
	invStateMatch     = 30
	invNationalFocus  = 15
	invActive         = 20
)

// ScoreCDE scores a CDE candidate against a deal. Range [0,100].
func ScoreCDE(deal domain.Deal, c domain.CandidateProfile) (int, []string) {
	score := 0
	var reasons []string

	switch geoFit(deal.State, c.GeoFocus) {
	case geoState:
		score += cdeStateMatch
		reasons = append(reasons, fmt.Sprintf("serves %s", deal.State))
	case geoNational:
		score += cdeNationalFocus
		reasons = append(reasons, "national service area")
	}

	if c.RemainingCapital > 0 {
		score += cdeCapital
		reasons = append(reasons, "allocation remaining")
	}

	score += cdeSector

	return score, reasons
}

// ScoreInvestor scores an investor candidate against a deal. Range [0,100].
// An unset active flag is treated as active.
func ScoreInvestor(deal domain.Deal, c domain.CandidateProfile) (int, []string) {
	score := 0
	var reasons []string

	if p, ok := programOverlap(deal.ProgramTypes, c.Programs); ok {
		score += invProgramOverlap
		reasons = append(reasons, fmt.Sprintf("invests in %s", p))
	}

	switch geoFit(deal.State, c.GeoFocus) {
	case geoState:
		score += invStateMatch
		reasons = append(reasons, fmt.Sprintf("serves %s", deal.State))
	case geoNational:
		score += invNationalFocus
		reasons = append(reasons, "national service area")
	}

	if c.Active {
		score += invActive
		reasons = append(reasons, "actively investing")
	}

	return score, reasons
}

// Score dispatches on candidate type.
func Score(deal domain.Deal, c domain.CandidateProfile) (int, []string) {
	if c.Type == domain.RecipientInvestor {
		return ScoreInvestor(deal, c)
	}
	return ScoreCDE(deal, c)
}

type geoMatch int

const (
	geoNone geoMatch = iota
	geoNational
	geoState
)

// geoFit prefers an exact state match over the national sentinel when a
// focus set contains both.
func geoFit(state string, focus []string) geoMatch {
	if state == "" {
		return geoNone
	}
	best := geoNone
	for _, f := range focus {
		switch {
		case strings.EqualFold(f, state):
			return geoState
		case strings.EqualFold(f, domain.GeoNational):
			best = geoNational
		}
	}
	return best
}

// programOverlap returns the first deal program also accepted by the
// candidate. First-match keeps scoring reasons stable across calls.
func programOverlap(dealPrograms, accepted []string) (string, bool) {
	for _, p := range dealPrograms {
		for _, a := range accepted {
			if strings.EqualFold(p, a) {
				return p, true
			}
		}
	}
	return "", false
}
