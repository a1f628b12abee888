// Package enrichment fills in missing contact data for scraped leads by
// running a waterfall of provider APIs. Providers are tried in order and
// the waterfall stops at the first verified email; partial results from
// earlier providers are merged into the lead either way.
package enrichment

import (
	"context"
	"strings"

	"github.com/ignite/leadflow/internal/lead"
)

// Result is what a single provider learned about a lead. Empty fields
// mean the provider had nothing; they never overwrite existing data.
type Result struct {
	Email         string   `json:"email,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	Phone         string   `json:"phone,omitempty"`
	Title         string   `json:"title,omitempty"`
	LinkedInURL   string   `json:"linkedin_url,omitempty"`
	Industry      string   `json:"industry,omitempty"`
	CompanySize   int      `json:"company_size,omitempty"`
	Location      string   `json:"location,omitempty"`
	TechStack     []string `json:"tech_stack,omitempty"`

	// Quality is the provider's own confidence in the result, 0.0-1.0.
	Quality float64 `json:"quality"`
}

// Empty reports whether the provider returned nothing usable.
func (r *Result) Empty() bool {
	return r == nil || (r.Email == "" && r.Phone == "" && r.Title == "" &&
		r.LinkedInURL == "" && r.Industry == "" && r.CompanySize == 0 &&
		r.Location == "" && len(r.TechStack) == 0)
}

// Apply merges the result into the lead without clobbering known fields.
// Verified emails are the exception: they replace unverified ones.
func (r *Result) Apply(l *lead.Lead) {
	if r == nil {
		return
	}
	if r.Email != "" && (l.Email == "" || (r.EmailVerified && !l.EmailVerified)) {
		l.Email = strings.ToLower(strings.TrimSpace(r.Email))
		l.EmailVerified = r.EmailVerified
	}
	if r.Phone != "" && l.Phone == "" {
		l.Phone = r.Phone
	}
	if r.Title != "" && l.Title == "" {
		l.Title = r.Title
	}
	if r.LinkedInURL != "" && l.LinkedInURL == "" {
		l.LinkedInURL = r.LinkedInURL
	}
	if r.Industry != "" && l.Industry == "" {
		l.Industry = r.Industry
	}
	if r.CompanySize > 0 && l.CompanySize == 0 {
		l.CompanySize = r.CompanySize
	}
	if r.Location != "" && l.Location == "" {
		l.Location = r.Location
	}
	if len(r.TechStack) > 0 && len(l.TechStack) == 0 {
		l.TechStack = r.TechStack
	}
	if r.Quality > l.EnrichmentQuality {
		l.EnrichmentQuality = r.Quality
	}
}

// Provider is a contact enrichment source.
type Provider interface {
	// Name identifies the provider for outcome logging and rate limiting.
	Name() string
	// Enrich looks the lead up. A nil result with nil error means the
	// provider found nothing for this lead.
	Enrich(ctx context.Context, l *lead.Lead) (*Result, error)
}
