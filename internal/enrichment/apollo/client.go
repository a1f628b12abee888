// Package apollo implements contact enrichment against the Apollo.io
// people match API.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/enrichment"
	"github.com/ignite/leadflow/internal/lead"
	"github.com/ignite/leadflow/internal/pkg/httpretry"
)

// Client is an Apollo.io API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new Apollo API client
func NewClient(cfg config.ApolloConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// Name returns the provider identifier used in outcome logs.
func (c *Client) Name() string { return "apollo" }

type matchRequest struct {
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Organization string `json:"organization_name,omitempty"`
	Domain       string `json:"domain,omitempty"`
	LinkedInURL  string `json:"linkedin_url,omitempty"`
	RevealEmails bool   `json:"reveal_personal_emails"`
}

type matchResponse struct {
	Person *struct {
		Email       string `json:"email"`
		EmailStatus string `json:"email_status"`
		Title       string `json:"title"`
		LinkedInURL string `json:"linkedin_url"`
		City        string `json:"city"`
		State       string `json:"state"`
		Country     string `json:"country"`
		PhoneNumber string `json:"sanitized_phone"`

		Organization *struct {
			Industry              string   `json:"industry"`
			EstimatedNumEmployees int      `json:"estimated_num_employees"`
			Technologies          []string `json:"technology_names"`
		} `json:"organization"`
	} `json:"person"`
}

// Enrich looks the lead up via POST /people/match.
func (c *Client) Enrich(ctx context.Context, l *lead.Lead) (*enrichment.Result, error) {
	reqBody := matchRequest{
		FirstName:    l.FirstName,
		LastName:     l.LastName,
		Email:        l.Email,
		Organization: l.Company,
		Domain:       l.Domain,
		LinkedInURL:  l.LinkedInURL,
		RevealEmails: true,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/people/match", reqBody)
	if err != nil {
		return nil, err
	}

	var resp matchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing match response: %w", err)
	}
	if resp.Person == nil {
		return nil, nil
	}

	p := resp.Person
	result := &enrichment.Result{
		Email:         p.Email,
		EmailVerified: p.EmailStatus == "verified",
		Phone:         p.PhoneNumber,
		Title:         p.Title,
		LinkedInURL:   p.LinkedInURL,
		Location:      joinLocation(p.City, p.State, p.Country),
	}
	if p.Organization != nil {
		result.Industry = p.Organization.Industry
		result.CompanySize = p.Organization.EstimatedNumEmployees
		result.TechStack = p.Organization.Technologies
	}
	result.Quality = quality(result)

	return result, nil
}

// doRequest makes an HTTP request to the Apollo API
func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("X-Api-Key", c.apiKey)
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

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func joinLocation(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}

// quality scores how complete the match came back.
func quality(r *enrichment.Result) float64 {
	q := 0.0
	if r.Email != "" {
		q += 0.3
	}
	if r.EmailVerified {
		q += 0.3
	}
	if r.Title != "" {
		q += 0.15
	}
	if r.CompanySize > 0 {
		q += 0.1
	}
	if r.Industry != "" {
		q += 0.1
	}
	if r.Phone != "" {
		q += 0.05
	}
	return q
}
