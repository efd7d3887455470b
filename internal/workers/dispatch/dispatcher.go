// Package dispatch fans one outreach call out to its recipients. Each
// recipient's lookup/notify/email sequence is independent; one recipient's
// failure never blocks a sibling, and results come back in request order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"capmatch/internal/domain"
	"capmatch/internal/ports"
)

// fallbackContactName addresses recipients with no usable contact or
// organization name on file.
const fallbackContactName = "Team"

// Config carries the dispatcher's wiring-time settings.
type Config struct {
	// ClaimBaseURL prefixes claim links; the recipient's claim code is
	// appended under /claim/.
	ClaimBaseURL string
	// SignupURL is the generic fallback link for recipients without a claim
	// code; recipient type, org, and deal ride along as query context.
	SignupURL string
	// Workers bounds concurrent recipient processing; size it to the email
	// provider's rate limit.
	Workers int
}

// Dispatcher delivers outreach to recipients over in-app and email channels.
type Dispatcher struct {
	candidates ports.CandidateRepository
	directory  ports.UserDirectory
	channels   ports.ChannelProvisioner
	email      ports.EmailService
	cfg        Config
	log        *slog.Logger
}

// New builds a dispatcher.
func New(candidates ports.CandidateRepository, directory ports.UserDirectory, channels ports.ChannelProvisioner, email ports.EmailService, cfg Config, log *slog.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{candidates: candidates, directory: directory, channels: channels, email: email, cfg: cfg, log: log}
}

// Dispatch processes every item concurrently, bounded by cfg.Workers, and
// returns one DeliveryResult per item in item order.
func (d *Dispatcher) Dispatch(ctx context.Context, in ports.DispatchInput) []domain.DeliveryResult {
	results := make([]domain.DeliveryResult, len(in.Items))
	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for i, item := range in.Items {
		g.Go(func() error {
			results[i] = d.deliver(ctx, in, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// deliver runs one recipient end to end. Any panic or unexpected error is
// absorbed into a processing_error result at this boundary.
func (d *Dispatcher) deliver(ctx context.Context, in ports.DispatchInput, item ports.DispatchItem) (res domain.DeliveryResult) {
	res = domain.DeliveryResult{RecipientID: item.RecipientID, RecipientType: in.Type}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("recipient processing panicked", "recipient_id", item.RecipientID, "panic", r)
			res.Status = domain.DeliveryProcessingError
			res.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	cand, err := d.candidates.GetCandidate(ctx, in.Type, item.RecipientID)
	if errors.Is(err, ports.ErrNotFound) {
		res.Status = domain.DeliveryRecipientNotFound
		res.Error = fmt.Sprintf("no %s found for id %s", in.Type, item.RecipientID)
		return res
	}
	if err != nil {
		res.Status = domain.DeliveryProcessingError
		res.Error = err.Error()
		return res
	}

	orgID, err := d.candidates.ResolveOrganization(ctx, item.RecipientID)
	if err != nil {
		// Same verbatim fallback the writer applies when nothing resolves.
		orgID = cand.OrganizationID()
	}
	res.OrgID = orgID
	res.OrgName = orgName(cand)

	// In-app side first; its failures are logged and swallowed so they can
	// never abort email delivery.
	d.notifyOnboarded(ctx, in, cand, orgID, item.ClaimCode)

	if cand.ContactEmail == "" {
		res.Status = domain.DeliveryNoContactEmail
		res.Error = "no contact email on file"
		return res
	}
	res.Email = cand.ContactEmail

	id, err := d.sendEmail(ctx, in, cand, item.ClaimCode, orgID)
	if err != nil {
		res.Status = domain.DeliveryProviderError
		res.Error = err.Error()
		return res
	}
	res.Status = domain.DeliverySent
	res.ProviderMessageID = id
	return res
}

// notifyOnboarded fans an in-app notification out to every active user of an
// onboarded target organization and provisions the shared deal channel
// between the sponsor's and the target's user sets. Everything here is
// best-effort.
func (d *Dispatcher) notifyOnboarded(ctx context.Context, in ports.DispatchInput, cand domain.CandidateProfile, orgID, claimCode string) {
	users, err := d.directory.ListActiveUsers(ctx, orgID)
	if err != nil {
		d.log.Error("onboarded lookup failed", "org_id", orgID, "error", err)
		return
	}
	if len(users) == 0 {
		return // not onboarded; email is the only channel
	}

	userIDs := make([]string, len(users))
	for i, u := range users {
		userIDs[i] = u.ID
	}
	notif := domain.Notification{
		Kind:    "outreach." + string(in.Type),
		Title:   fmt.Sprintf("%s invited you to %s", in.Sender.OrgName, in.Deal.Name),
		Body:    in.Message,
		DealID:  in.Deal.ID,
		LinkURL: d.claimURL(in, orgID, claimCode),
	}
	if err := d.directory.NotifyUsers(ctx, userIDs, notif); err != nil {
		d.log.Error("notification fan-out failed", "org_id", orgID, "error", err)
	}

	channelID, err := d.channels.EnsureDealChannel(ctx, in.Deal.ID, in.Deal.SponsorOrgID, orgID)
	if err != nil {
		d.log.Error("channel provisioning failed", "deal_id", in.Deal.ID, "org_id", orgID, "error", err)
		return
	}
	sponsorUsers, err := d.directory.ListActiveUsers(ctx, in.Deal.SponsorOrgID)
	if err != nil {
		d.log.Error("sponsor user lookup failed", "org_id", in.Deal.SponsorOrgID, "error", err)
		sponsorUsers = nil
	}
	members := userIDs
	for _, u := range sponsorUsers {
		members = append(members, u.ID)
	}
	if err := d.channels.UpsertMembers(ctx, channelID, members); err != nil {
		d.log.Error("channel membership upsert failed", "channel_id", channelID, "error", err)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, in ports.DispatchInput, cand domain.CandidateProfile, claimCode, orgID string) (string, error) {
	base := ports.OutreachEmail{
		ToName:   contactName(cand),
		ToEmail:  cand.ContactEmail,
		FromName: in.Sender.Name,
		FromOrg:  in.Sender.OrgName,
		Deal: ports.DealSummary{
			DealID:          in.Deal.ID,
			DealName:        in.Deal.Name,
			State:           in.Deal.State,
			PrimaryProgram:  in.Deal.PrimaryProgram(),
			RequestedAmount: formatUSD(in.Deal.RequestedAmount),
		},
		ClaimURL: d.claimURL(in, orgID, claimCode),
		Message:  in.Message,
	}
	if in.Type == domain.RecipientInvestor {
		return d.email.SendInvestmentRequest(ctx, ports.InvestmentRequestEmail{OutreachEmail: base})
	}
	return d.email.SendAllocationRequest(ctx, ports.AllocationRequestEmail{
		OutreachEmail:       base,
		RemainingAllocation: formatUSD(cand.RemainingCapital),
	})
}

// claimURL embeds the recipient's claim code when one exists; otherwise it
// falls back to the generic signup URL with recipient context in the query.
func (d *Dispatcher) claimURL(in ports.DispatchInput, orgID, claimCode string) string {
	if claimCode != "" {
		return strings.TrimRight(d.cfg.ClaimBaseURL, "/") + "/claim/" + claimCode
	}
	q := url.Values{}
	q.Set("type", string(in.Type))
	q.Set("org", orgID)
	q.Set("deal", in.Deal.ID)
	sep := "?"
	if strings.Contains(d.cfg.SignupURL, "?") {
		sep = "&"
	}
	return d.cfg.SignupURL + sep + q.Encode()
}

func contactName(c domain.CandidateProfile) string {
	if c.ContactName != "" {
		return c.ContactName
	}
	if c.Name != "" {
		return c.Name
	}
	return fallbackContactName
}

func orgName(c domain.CandidateProfile) string {
	if c.Name != "" {
		return c.Name
	}
	return "Unknown organization"
}

// formatUSD renders whole dollars with thousands separators, e.g.
// "$12,500,000".
func formatUSD(cents int64) string {
	return "$" + humanize.Comma(cents/100)
}
