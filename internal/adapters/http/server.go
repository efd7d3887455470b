package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"capmatch/internal/domain"
	"capmatch/internal/ports"
	"capmatch/internal/services/matching"
	"capmatch/internal/services/outreach"
)

// maxRequestBodySize limits POST body sizes.
const maxRequestBodySize = 1 << 20 // 1 MB

// sponsorHeader carries the caller's asserted sponsor id. Session
// verification is an upstream concern; this service only authorizes deal
// ownership against it.
const sponsorHeader = "X-Sponsor-ID"

// Server exposes the outreach and matching operations over JSON HTTP.
type Server struct {
	outreach ports.Outreach
	matching ports.Matching
	log      *slog.Logger
}

func New(outreachSvc ports.Outreach, matchingSvc ports.Matching, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{outreach: outreachSvc, matching: matchingSvc, log: log}
}

// Routes returns a chi.Router with all handlers mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/deals/{dealID}", func(r chi.Router) {
		r.Get("/candidates", s.handleListCandidates)
		r.Post("/outreach", s.handleCreateOutreach)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createOutreachRequest is the POST /deals/{dealID}/outreach body.
type createOutreachRequest struct {
	RecipientIDs  []string `json:"recipientIds"`
	RecipientType string   `json:"recipientType"`
	Message       string   `json:"message"`
	Sender        struct {
		UserID string `json:"userId"`
		Name   string `json:"name"`
		Org    string `json:"org"`
		Email  string `json:"email"`
	} `json:"sender"`
}

func (s *Server) handleCreateOutreach(w http.ResponseWriter, r *http.Request) {
	sponsorID := r.Header.Get(sponsorHeader)
	if sponsorID == "" {
		writeError(w, http.StatusForbidden, "missing sponsor identity")
		return
	}

	var req createOutreachRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := s.outreach.CreateOutreach(r.Context(), ports.CreateOutreachInput{
		SponsorID:    sponsorID,
		DealID:       chi.URLParam(r, "dealID"),
		RecipientIDs: req.RecipientIDs,
		Type:         domain.RecipientType(req.RecipientType),
		Message:      req.Message,
		Sender: domain.Sender{
			UserID:  req.Sender.UserID,
			Name:    req.Sender.Name,
			OrgName: req.Sender.Org,
			Email:   req.Sender.Email,
		},
	})
	if err != nil {
		s.writeOutreachError(w, out, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// writeOutreachError maps service errors to status codes. A delivery failure
// still carries the full per-recipient accounting so the UI can show which
// recipients failed and why.
func (s *Server) writeOutreachError(w http.ResponseWriter, out ports.CreateOutreachOutput, err error) {
	var validation *outreach.ValidationError
	var quota *outreach.QuotaExceededError
	switch {
	case errors.Is(err, outreach.ErrNotDealSponsor):
		writeError(w, http.StatusForbidden, "you are not the sponsor of this deal")
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "deal not found")
	case errors.As(err, &validation), errors.As(err, &quota):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, outreach.ErrNothingDelivered):
		writeJSON(w, http.StatusBadGateway, out)
	default:
		s.log.Error("create outreach failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	sponsorID := r.Header.Get(sponsorHeader)
	if sponsorID == "" {
		writeError(w, http.StatusForbidden, "missing sponsor identity")
		return
	}

	out, err := s.matching.ListCandidates(r.Context(), sponsorID, chi.URLParam(r, "dealID"), r.URL.Query().Get("type"))
	if err != nil {
		switch {
		case errors.Is(err, matching.ErrNotDealSponsor):
			writeError(w, http.StatusForbidden, "you are not the sponsor of this deal")
		case errors.Is(err, ports.ErrNotFound):
			writeError(w, http.StatusNotFound, "deal not found")
		default:
			s.log.Error("list candidates failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}
