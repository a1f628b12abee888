// Package ghl syncs delivered leads into GoHighLevel CRM. Auth uses
// OAuth2 client credentials; tokens are refreshed automatically by the
// oauth2 transport.
package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
	"github.com/ignite/leadflow/internal/pkg/httpretry"
)

// apiVersion is the GoHighLevel API version header value.
const apiVersion = "2021-07-28"

// Client is a GoHighLevel API client
type Client struct {
	baseURL    string
	locationID string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a GoHighLevel client with OAuth2 client credentials.
func NewClient(ctx context.Context, cfg config.GHLConfig) *Client {
	oauthCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	base := oauthCfg.Client(ctx)
	base.Timeout = cfg.Timeout()

	return &Client{
		baseURL:    cfg.BaseURL,
		locationID: cfg.LocationID,
		httpClient: httpretry.NewRetryClient(base, 3),
	}
}

type upsertContactRequest struct {
	LocationID  string            `json:"locationId"`
	Email       string            `json:"email"`
	FirstName   string            `json:"firstName,omitempty"`
	LastName    string            `json:"lastName,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	CompanyName string            `json:"companyName,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Source      string            `json:"source,omitempty"`
	CustomField map[string]string `json:"customField,omitempty"`
}

type upsertContactResponse struct {
	Contact struct {
		ID string `json:"id"`
	} `json:"contact"`
	New bool `json:"new"`
}

// UpsertContact creates or updates the CRM contact for a lead. The tier
// and ICP score ride along as tags and custom fields so CRM workflows
// can route on them. Returns the GHL contact ID.
func (c *Client) UpsertContact(ctx context.Context, l *lead.Lead) (string, error) {
	req := upsertContactRequest{
		LocationID:  c.locationID,
		Email:       l.Email,
		FirstName:   l.FirstName,
		LastName:    l.LastName,
		Phone:       l.Phone,
		CompanyName: l.Company,
		Source:      l.Source,
		Tags:        []string{"leadflow", "tier:" + string(l.Tier)},
		CustomField: map[string]string{
			"icp_score":   fmt.Sprintf("%.1f", l.ICPScore),
			"enriched_by": l.EnrichedBy,
		},
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/contacts/upsert", req)
	if err != nil {
		return "", err
	}

	var resp upsertContactResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing upsert response: %w", err)
	}
	if resp.Contact.ID == "" {
		return "", fmt.Errorf("upsert returned no contact id")
	}
	return resp.Contact.ID, nil
}

// AddNote attaches an outreach note (what was sent, which strategy) to
// an existing contact.
func (c *Client) AddNote(ctx context.Context, contactID, note string) error {
	payload := map[string]string{"body": note}
	path := fmt.Sprintf("/contacts/%s/notes", contactID)
	_, err := c.doRequest(ctx, http.MethodPost, path, payload)
	return err
}

// doRequest makes an HTTP request to the GoHighLevel API
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

	req.Header.Set("Version", apiVersion)
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
