// Package scraper produces raw leads for the pipeline. Production
// sourcing is CSV import; the LinkedIn source is a stub that exists so
// the pipeline wiring and rate caps are in place when scraping lands.
package scraper

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ignite/leadflow/internal/lead"
)

// Source yields raw leads.
type Source interface {
	Name() string
	Fetch(ctx context.Context, limit int) ([]*lead.Lead, error)
}

// CSVSource reads leads from a CSV export. Expected header:
// email,first_name,last_name,title,company,domain,industry,company_size,location,linkedin_url
type CSVSource struct {
	path string
}

// NewCSVSource creates a CSV lead source.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Name returns the source identifier.
func (s *CSVSource) Name() string { return "csv" }

// Fetch reads up to limit leads from the file. Rows without an email or
// company are skipped.
func (s *CSVSource) Fetch(ctx context.Context, limit int) ([]*lead.Lead, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["email"]; !ok {
		return nil, fmt.Errorf("csv missing email column")
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []*lead.Lead
	for limit <= 0 || len(out) < limit {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		email := get(row, "email")
		company := get(row, "company")
		if email == "" || company == "" {
			continue
		}

		l := lead.New(email, company)
		l.FirstName = get(row, "first_name")
		l.LastName = get(row, "last_name")
		l.Title = get(row, "title")
		l.Domain = get(row, "domain")
		l.Industry = get(row, "industry")
		l.Location = get(row, "location")
		l.LinkedInURL = get(row, "linkedin_url")
		l.Source = s.Name()
		if size := get(row, "company_size"); size != "" {
			if n, err := strconv.Atoi(size); err == nil {
				l.CompanySize = n
			}
		}
		out = append(out, l)
	}

	return out, nil
}

// LinkedInSource is a placeholder for LinkedIn Sales Navigator sourcing.
// It returns no leads; the daily LinkedIn action cap in compliance is
// enforced regardless so turning this on later cannot exceed limits.
type LinkedInSource struct{}

// NewLinkedInSource creates the stub source.
func NewLinkedInSource() *LinkedInSource { return &LinkedInSource{} }

// Name returns the source identifier.
func (s *LinkedInSource) Name() string { return "linkedin" }

// Fetch returns no leads.
func (s *LinkedInSource) Fetch(ctx context.Context, limit int) ([]*lead.Lead, error) {
	return nil, nil
}

// StaticSource serves a fixed batch, used by the sandbox and tests.
type StaticSource struct {
	leads []*lead.Lead
}

// NewStaticSource creates a source over a fixed lead set.
func NewStaticSource(leads []*lead.Lead) *StaticSource {
	return &StaticSource{leads: leads}
}

// Name returns the source identifier.
func (s *StaticSource) Name() string { return "static" }

// Fetch returns up to limit of the fixed leads.
func (s *StaticSource) Fetch(ctx context.Context, limit int) ([]*lead.Lead, error) {
	if limit <= 0 || limit > len(s.leads) {
		limit = len(s.leads)
	}
	out := make([]*lead.Lead, limit)
	copy(out, s.leads[:limit])
	for _, l := range out {
		if l.Source == "" {
			l.Source = s.Name()
		}
	}
	return out, nil
}
