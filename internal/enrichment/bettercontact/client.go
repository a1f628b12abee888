// Package bettercontact implements contact enrichment against the
// BetterContact async API. Lookups are submitted as jobs and polled
// until they terminate.
package bettercontact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/enrichment"
	"github.com/ignite/leadflow/internal/lead"
	"github.com/ignite/leadflow/internal/pkg/httpretry"
)

// Client is a BetterContact API client
type Client struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	httpClient   httpretry.HTTPDoer
}

// NewClient creates a new BetterContact API client
func NewClient(cfg config.BetterContactConfig) *Client {
	pollInterval := time.Duration(cfg.PollSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollInterval: pollInterval,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// Name returns the provider identifier used in outcome logs.
func (c *Client) Name() string { return "bettercontact" }

type submitRequest struct {
	Data               []contactQuery `json:"data"`
	EnrichEmailAddress bool           `json:"enrich_email_address"`
	EnrichPhoneNumber  bool           `json:"enrich_phone_number"`
}

type contactQuery struct {
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Company       string `json:"company,omitempty"`
	CompanyDomain string `json:"company_domain,omitempty"`
	LinkedInURL   string `json:"linkedin_url,omitempty"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type jobResponse struct {
	Status string `json:"status"`
	Data   []struct {
		ContactEmailAddress string `json:"contact_email_address"`
		EmailStatus         string `json:"contact_email_address_status"`
		ContactPhoneNumber  string `json:"contact_phone_number"`
		ContactJobTitle     string `json:"contact_job_title"`
	} `json:"data"`
}

// Enrich submits an async lookup and polls until the job terminates or
// the context is cancelled.
func (c *Client) Enrich(ctx context.Context, l *lead.Lead) (*enrichment.Result, error) {
	req := submitRequest{
		Data: []contactQuery{{
			FirstName:     l.FirstName,
			LastName:      l.LastName,
			Company:       l.Company,
			CompanyDomain: l.Domain,
			LinkedInURL:   l.LinkedInURL,
		}},
		EnrichEmailAddress: true,
		EnrichPhoneNumber:  l.Phone == "",
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/async", req)
	if err != nil {
		return nil, err
	}

	var submitted submitResponse
	if err := json.Unmarshal(body, &submitted); err != nil {
		return nil, fmt.Errorf("parsing submit response: %w", err)
	}
	if submitted.ID == "" {
		return nil, fmt.Errorf("submit returned no job id")
	}

	return c.poll(ctx, submitted.ID)
}

// poll waits for the async job to finish.
func (c *Client) poll(ctx context.Context, jobID string) (*enrichment.Result, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		body, err := c.doRequest(ctx, http.MethodGet, "/async/"+jobID, nil)
		if err != nil {
			return nil, err
		}

		var job jobResponse
		if err := json.Unmarshal(body, &job); err != nil {
			return nil, fmt.Errorf("parsing job response: %w", err)
		}

		switch job.Status {
		case "terminated":
			if len(job.Data) == 0 {
				return nil, nil
			}
			d := job.Data[0]
			result := &enrichment.Result{
				Email:         d.ContactEmailAddress,
				EmailVerified: d.EmailStatus == "deliverable",
				Phone:         d.ContactPhoneNumber,
				Title:         d.ContactJobTitle,
			}
			if result.Empty() {
				return nil, nil
			}
			result.Quality = quality(result)
			return result, nil
		case "failed":
			return nil, fmt.Errorf("enrichment job %s failed", jobID)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// doRequest makes an HTTP request to the BetterContact API
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

func quality(r *enrichment.Result) float64 {
	q := 0.0
	if r.Email != "" {
		q += 0.4
	}
	if r.EmailVerified {
		q += 0.3
	}
	if r.Title != "" {
		q += 0.15
	}
	if r.Phone != "" {
		q += 0.15
	}
	return q
}
