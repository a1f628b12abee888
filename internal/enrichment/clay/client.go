// Package clay implements contact enrichment through a Clay table
// webhook. Clay runs its own waterfall server-side, so this client is a
// single synchronous POST.
package clay

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

// Client is a Clay webhook client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new Clay client
func NewClient(cfg config.ClayConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// Name returns the provider identifier used in outcome logs.
func (c *Client) Name() string { return "clay" }

type enrichRequest struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Company     string `json:"company,omitempty"`
	Domain      string `json:"domain,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

type enrichResponse struct {
	Found   bool `json:"found"`
	Contact struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Phone         string `json:"phone"`
		Title         string `json:"title"`
		LinkedInURL   string `json:"linkedin_url"`
		Location      string `json:"location"`
	} `json:"contact"`
	Company struct {
		Industry  string   `json:"industry"`
		Headcount int      `json:"headcount"`
		TechStack []string `json:"tech_stack"`
	} `json:"company"`
}

// Enrich posts the lead to the Clay enrichment webhook.
func (c *Client) Enrich(ctx context.Context, l *lead.Lead) (*enrichment.Result, error) {
	reqBody := enrichRequest{
		FirstName:   l.FirstName,
		LastName:    l.LastName,
		Company:     l.Company,
		Domain:      l.Domain,
		LinkedInURL: l.LinkedInURL,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/enrich", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("x-clay-webhook-auth", c.apiKey)
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

	var parsed enrichResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing enrich response: %w", err)
	}
	if !parsed.Found {
		return nil, nil
	}

	result := &enrichment.Result{
		Email:         parsed.Contact.Email,
		EmailVerified: parsed.Contact.EmailVerified,
		Phone:         parsed.Contact.Phone,
		Title:         parsed.Contact.Title,
		LinkedInURL:   parsed.Contact.LinkedInURL,
		Location:      parsed.Contact.Location,
		Industry:      parsed.Company.Industry,
		CompanySize:   parsed.Company.Headcount,
		TechStack:     parsed.Company.TechStack,
	}
	result.Quality = quality(result)
	return result, nil
}

func quality(r *enrichment.Result) float64 {
	q := 0.0
	if r.Email != "" {
		q += 0.35
	}
	if r.EmailVerified {
		q += 0.25
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
