// Package instantly implements the Instantly.ai outreach API used as
// the primary email delivery channel. Crafted messages are attached to
// a lead as custom variables and the lead is added to a campaign.
package instantly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
	"github.com/ignite/leadflow/internal/pkg/httpretry"
)

// Client is an Instantly API client
type Client struct {
	baseURL    string
	apiKey     string
	campaignID string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new Instantly API client
func NewClient(cfg config.InstantlyConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		campaignID: cfg.CampaignID,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

type addLeadRequest struct {
	CampaignID       string            `json:"campaign"`
	Email            string            `json:"email"`
	FirstName        string            `json:"first_name,omitempty"`
	LastName         string            `json:"last_name,omitempty"`
	CompanyName      string            `json:"company_name,omitempty"`
	CustomVariables  map[string]string `json:"custom_variables,omitempty"`
	SkipIfInCampaign bool              `json:"skip_if_in_campaign"`
}

type addLeadResponse struct {
	ID string `json:"id"`
}

type campaignAnalytics struct {
	CampaignID    string `json:"campaign_id"`
	LeadsCount    int    `json:"leads_count"`
	EmailsSent    int    `json:"emails_sent_count"`
	OpenCount     int    `json:"open_count"`
	ReplyCount    int    `json:"reply_count"`
	BouncedCount  int    `json:"bounced_count"`
	OptOutCount   int    `json:"unsubscribed_count"`
}

// QueueLead adds a lead to the configured campaign with the crafted
// subject and body as custom variables. Returns the Instantly lead ID.
func (c *Client) QueueLead(ctx context.Context, l *lead.Lead, subject, body string) (string, error) {
	req := addLeadRequest{
		CampaignID:  c.campaignID,
		Email:       l.Email,
		FirstName:   l.FirstName,
		LastName:    l.LastName,
		CompanyName: l.Company,
		CustomVariables: map[string]string{
			"subject": subject,
			"body":    body,
			"tier":    string(l.Tier),
		},
		SkipIfInCampaign: true,
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/leads", req)
	if err != nil {
		return "", err
	}

	var resp addLeadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parsing add lead response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("add lead returned no id")
	}
	return resp.ID, nil
}

// CampaignStats fetches engagement counters for the configured
// campaign. The pipeline converts these into RL rewards.
func (c *Client) CampaignStats(ctx context.Context) (*Stats, error) {
	path := "/campaigns/analytics?id=" + c.campaignID
	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var analytics []campaignAnalytics
	if err := json.Unmarshal(respBody, &analytics); err != nil {
		return nil, fmt.Errorf("parsing analytics response: %w", err)
	}
	if len(analytics) == 0 {
		return nil, fmt.Errorf("no analytics for campaign %s", c.campaignID)
	}

	a := analytics[0]
	return &Stats{
		Leads:        a.LeadsCount,
		Sent:         a.EmailsSent,
		Opens:        a.OpenCount,
		Replies:      a.ReplyCount,
		Bounces:      a.BouncedCount,
		Unsubscribes: a.OptOutCount,
	}, nil
}

// Stats is a campaign engagement snapshot.
type Stats struct {
	Leads        int `json:"leads"`
	Sent         int `json:"sent"`
	Opens        int `json:"opens"`
	Replies      int `json:"replies"`
	Bounces      int `json:"bounces"`
	Unsubscribes int `json:"unsubscribes"`
}

// doRequest makes an HTTP request to the Instantly API
func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
