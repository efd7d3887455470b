// Package email sends tracked outreach messages through a JSON transactional
// mail provider.
package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"capmatch/internal/ports"
)

const (
	templateAllocation = "allocation-request"
	templateInvestment = "investment-request"
)

// Client implements ports.EmailService against the provider's /messages
// endpoint.
type Client struct {
	endpoint string
	apiKey   string
	from     string
	http     *http.Client
}

// New builds a client. httpClient may be nil.
func New(endpoint, apiKey, from string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{endpoint: endpoint, apiKey: apiKey, from: from, http: httpClient}
}

// message is the provider's wire shape: a named template plus substitution
// variables, with open/click tracking on.
type message struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	ToName     string            `json:"toName,omitempty"`
	Template   string            `json:"template"`
	Variables  map[string]string `json:"variables"`
	Track      bool              `json:"track"`
	Attachment string            `json:"attachment,omitempty"` // base64
}

type sendResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

func (c *Client) SendAllocationRequest(ctx context.Context, msg ports.AllocationRequestEmail) (string, error) {
	vars := baseVariables(msg.OutreachEmail)
	vars["remaining_allocation"] = msg.RemainingAllocation
	return c.send(ctx, templateAllocation, msg.OutreachEmail, vars)
}

func (c *Client) SendInvestmentRequest(ctx context.Context, msg ports.InvestmentRequestEmail) (string, error) {
	return c.send(ctx, templateInvestment, msg.OutreachEmail, baseVariables(msg.OutreachEmail))
}

func baseVariables(m ports.OutreachEmail) map[string]string {
	return map[string]string{
		"to_name":          m.ToName,
		"from_name":        m.FromName,
		"from_org":         m.FromOrg,
		"deal_name":        m.Deal.DealName,
		"deal_state":       m.Deal.State,
		"primary_program":  m.Deal.PrimaryProgram,
		"requested_amount": m.Deal.RequestedAmount,
		"claim_url":        m.ClaimURL,
		"message":          m.Message,
	}
}

func (c *Client) send(ctx context.Context, template string, m ports.OutreachEmail, vars map[string]string) (string, error) {
	payload := message{
		From:      c.from,
		To:        m.ToEmail,
		ToName:    m.ToName,
		Template:  template,
		Variables: vars,
		Track:     true,
	}
	if len(m.Attachment) > 0 {
		payload.Attachment = base64.StdEncoding.EncodeToString(m.Attachment)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send %s: %w", template, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read provider response: %w", err)
	}
	var out sendResponse
	if err := json.Unmarshal(data, &out); err != nil {
		out = sendResponse{}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		if out.Error != "" {
			return "", fmt.Errorf("provider rejected %s: %s", template, out.Error)
		}
		return "", fmt.Errorf("provider rejected %s: status %d", template, resp.StatusCode)
	}
	return out.ID, nil
}
