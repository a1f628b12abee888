// Package postgres persists leads between pipeline runs.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/leadflow/internal/lead"
)

// ErrNotFound is returned when a lead does not exist.
var ErrNotFound = errors.New("lead not found")

// LeadRepo implements lead persistence against PostgreSQL.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

const leadColumns = `id, email, first_name, last_name, title, company, domain,
       industry, company_size, location, linkedin_url, COALESCE(phone,''),
       tech_stack, intent_signals,
       email_verified, COALESCE(enriched_by,''), enrichment_quality,
       icp_score, COALESCE(tier,''), source, status, created_at, updated_at`

// Upsert inserts the lead or updates it by email.
func (r *LeadRepo) Upsert(ctx context.Context, l *lead.Lead) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO leads
			(id, email, first_name, last_name, title, company, domain,
			 industry, company_size, location, linkedin_url, phone,
			 tech_stack, intent_signals,
			 email_verified, enriched_by, enrichment_quality,
			 icp_score, tier, source, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, NOW())
		ON CONFLICT (email) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			title = EXCLUDED.title,
			company = EXCLUDED.company,
			domain = EXCLUDED.domain,
			industry = EXCLUDED.industry,
			company_size = EXCLUDED.company_size,
			location = EXCLUDED.location,
			linkedin_url = EXCLUDED.linkedin_url,
			phone = EXCLUDED.phone,
			tech_stack = EXCLUDED.tech_stack,
			intent_signals = EXCLUDED.intent_signals,
			email_verified = EXCLUDED.email_verified,
			enriched_by = EXCLUDED.enriched_by,
			enrichment_quality = EXCLUDED.enrichment_quality,
			icp_score = EXCLUDED.icp_score,
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, l.ID, l.Email, l.FirstName, l.LastName, l.Title, l.Company, l.Domain,
		l.Industry, l.CompanySize, l.Location, l.LinkedInURL, l.Phone,
		pq.Array(l.TechStack), pq.Array(l.IntentSignals),
		l.EmailVerified, l.EnrichedBy, l.EnrichmentQuality,
		l.ICPScore, string(l.Tier), l.Source, string(l.Status), l.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	return nil
}

// GetByEmail fetches one lead by email.
func (r *LeadRepo) GetByEmail(ctx context.Context, email string) (*lead.Lead, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE email = $1`, email)
	return scanLead(row)
}

// ListByStatus returns up to limit leads in the given pipeline status,
// oldest first so stalled leads drain before fresh ones.
func (r *LeadRepo) ListByStatus(ctx context.Context, status lead.Status, limit int) ([]*lead.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []*lead.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a lead's pipeline status.
func (r *LeadRepo) UpdateStatus(ctx context.Context, email string, status lead.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET status = $1, updated_at = NOW() WHERE email = $2`,
		string(status), email)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByTier returns how many leads sit in each tier, for the stats API.
func (r *LeadRepo) CountByTier(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(tier,''), COUNT(*) FROM leads GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("count by tier: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("scan tier count: %w", err)
		}
		counts[tier] = n
	}
	return counts, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(s scanner) (*lead.Lead, error) {
	l := &lead.Lead{}
	var tier, status string
	err := s.Scan(
		&l.ID, &l.Email, &l.FirstName, &l.LastName, &l.Title, &l.Company, &l.Domain,
		&l.Industry, &l.CompanySize, &l.Location, &l.LinkedInURL, &l.Phone,
		pq.Array(&l.TechStack), pq.Array(&l.IntentSignals),
		&l.EmailVerified, &l.EnrichedBy, &l.EnrichmentQuality,
		&l.ICPScore, &tier, &l.Source, &status, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead: %w", err)
	}
	l.Tier = lead.Tier(tier)
	l.Status = lead.Status(status)
	return l, nil
}
