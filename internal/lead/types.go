// Package lead defines the shared lead model that flows through the
// pipeline: scraped input, enrichment output, ICP scoring results, and
// delivery state.
package lead

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tier classifies a lead after ICP scoring.
type Tier string

const (
	TierHot          Tier = "hot"
	TierWarm         Tier = "warm"
	TierNurture      Tier = "nurture"
	TierDisqualified Tier = "disqualified"
)

// Status tracks pipeline progress for a lead.
type Status string

const (
	StatusNew        Status = "new"
	StatusEnriched   Status = "enriched"
	StatusScored     Status = "scored"
	StatusCrafted    Status = "crafted"
	StatusQueued     Status = "queued"
	StatusDelivered  Status = "delivered"
	StatusSynced     Status = "synced"
	StatusSuppressed Status = "suppressed"
	StatusFailed     Status = "failed"
)

// Lead is the canonical pipeline record.
type Lead struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Domain      string    `json:"domain"`
	Industry    string    `json:"industry"`
	CompanySize int       `json:"company_size"`
	Location    string    `json:"location"`
	LinkedInURL string    `json:"linkedin_url,omitempty"`
	Phone       string    `json:"phone,omitempty"`

	TechStack     []string `json:"tech_stack,omitempty"`
	IntentSignals []string `json:"intent_signals,omitempty"`

	// Enrichment bookkeeping
	EmailVerified     bool    `json:"email_verified"`
	EnrichedBy        string  `json:"enriched_by,omitempty"`
	EnrichmentQuality float64 `json:"enrichment_quality"` // 0.0 - 1.0

	// Scoring output
	ICPScore float64 `json:"icp_score"`
	Tier     Tier    `json:"tier,omitempty"`

	Source    string    `json:"source"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns the lead's display name, falling back to the email
// local part when both name fields are empty.
func (l *Lead) FullName() string {
	name := strings.TrimSpace(l.FirstName + " " + l.LastName)
	if name != "" {
		return name
	}
	if at := strings.Index(l.Email, "@"); at > 0 {
		return l.Email[:at]
	}
	return ""
}

// CompanySizeBand buckets headcount into the discrete bands used by
// scoring and the RL state key.
func (l *Lead) CompanySizeBand() string {
	switch {
	case l.CompanySize <= 0:
		return "unknown"
	case l.CompanySize <= 10:
		return "1-10"
	case l.CompanySize <= 50:
		return "11-50"
	case l.CompanySize <= 200:
		return "51-200"
	case l.CompanySize <= 1000:
		return "201-1000"
	default:
		return "1000+"
	}
}

// QualityBucket buckets enrichment quality into low/medium/high.
func (l *Lead) QualityBucket() string {
	switch {
	case l.EnrichmentQuality >= 0.8:
		return "high"
	case l.EnrichmentQuality >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

// New creates a lead with a fresh ID and timestamps.
func New(email, company string) *Lead {
	now := time.Now().UTC()
	return &Lead{
		ID:        uuid.New(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Company:   company,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
