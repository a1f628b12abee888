// Package segmentor scores leads against the Ideal Customer Profile and
// assigns outreach tiers. Scoring is additive over weighted criteria,
// clamped to [0,100]; each lead gets a per-criterion breakdown so the
// score is explainable to the operator and usable by the annealing loop.
package segmentor

import (
	"sort"
	"strings"
	"sync"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
)

// Weights holds the point value of each ICP criterion. The defaults sum
// to slightly over 100 so that a lead does not need a perfect profile to
// reach the hot tier.
type Weights struct {
	Industry      float64 `json:"industry"`
	Title         float64 `json:"title"`
	CompanySize   float64 `json:"company_size"`
	TechStack     float64 `json:"tech_stack"` // per matching technology
	TechStackMax  float64 `json:"tech_stack_max"`
	Geo           float64 `json:"geo"`
	IntentSignal  float64 `json:"intent_signal"` // per signal
	IntentMax     float64 `json:"intent_max"`
	VerifiedEmail float64 `json:"verified_email"`
}

// DefaultWeights returns the baseline criterion weights.
func DefaultWeights() Weights {
	return Weights{
		Industry:      25,
		Title:         25,
		CompanySize:   15,
		TechStack:     5,
		TechStackMax:  15,
		Geo:           10,
		IntentSignal:  5,
		IntentMax:     10,
		VerifiedEmail: 10,
	}
}

// ScoreBreakdown itemizes the points a lead earned per criterion.
type ScoreBreakdown struct {
	Industry      float64 `json:"industry"`
	Title         float64 `json:"title"`
	CompanySize   float64 `json:"company_size"`
	TechStack     float64 `json:"tech_stack"`
	Geo           float64 `json:"geo"`
	IntentSignals float64 `json:"intent_signals"`
	VerifiedEmail float64 `json:"verified_email"`
	Total         float64 `json:"total"`
}

// Classification is the scoring result for one lead.
type Classification struct {
	LeadID    string         `json:"lead_id"`
	Score     float64        `json:"score"`
	Tier      lead.Tier      `json:"tier"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// Segmentor scores and tiers leads against the configured ICP.
type Segmentor struct {
	mu      sync.RWMutex
	cfg     config.ScoringConfig
	weights Weights

	// normalized lookup sets built from config
	industries map[string]bool
	geos       []string
	titles     []string
	tech       map[string]bool
}

// New creates a segmentor from scoring config with default weights.
func New(cfg config.ScoringConfig) *Segmentor {
	s := &Segmentor{cfg: cfg, weights: DefaultWeights()}
	s.rebuild()
	return s
}

func (s *Segmentor) rebuild() {
	s.industries = make(map[string]bool, len(s.cfg.TargetIndustries))
	for _, ind := range s.cfg.TargetIndustries {
		s.industries[strings.ToLower(strings.TrimSpace(ind))] = true
	}
	s.tech = make(map[string]bool, len(s.cfg.TargetTech))
	for _, tch := range s.cfg.TargetTech {
		s.tech[strings.ToLower(strings.TrimSpace(tch))] = true
	}
	s.titles = s.titles[:0]
	for _, t := range s.cfg.TargetTitles {
		s.titles = append(s.titles, strings.ToLower(strings.TrimSpace(t)))
	}
	s.geos = s.geos[:0]
	for _, g := range s.cfg.TargetGeos {
		s.geos = append(s.geos, strings.ToLower(strings.TrimSpace(g)))
	}
}

// Weights returns the current criterion weights.
func (s *Segmentor) Weights() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// SetWeights replaces the criterion weights (used by annealing refinements).
func (s *Segmentor) SetWeights(w Weights) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = w
}

// AdjustWeight applies a delta to a named criterion weight. Unknown names
// are ignored. Weights never go below zero.
func (s *Segmentor) AdjustWeight(criterion string, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apply := func(w *float64) {
		*w += delta
		if *w < 0 {
			*w = 0
		}
	}
	switch criterion {
	case "industry":
		apply(&s.weights.Industry)
	case "title":
		apply(&s.weights.Title)
	case "company_size":
		apply(&s.weights.CompanySize)
	case "tech_stack":
		apply(&s.weights.TechStack)
	case "geo":
		apply(&s.weights.Geo)
	case "intent_signal":
		apply(&s.weights.IntentSignal)
	case "verified_email":
		apply(&s.weights.VerifiedEmail)
	}
}

// seniorityMarkers are title fragments that count as decision-maker
// seniority when no explicit target title matches.
var seniorityMarkers = []string{
	"ceo", "cto", "cfo", "coo", "cmo", "cro",
	"founder", "co-founder", "owner", "president",
	"vp ", "vice president", "head of", "director",
}

// Score calculates the ICP score for a lead. The result is clamped to
// [0,100] even if the configured weights could exceed it.
func (s *Segmentor) Score(l *lead.Lead) Classification {
	s.mu.RLock()
	w := s.weights
	s.mu.RUnlock()

	var b ScoreBreakdown

	// Industry: exact match against the target set
	if s.industries[strings.ToLower(strings.TrimSpace(l.Industry))] {
		b.Industry = w.Industry
	}

	// Title: configured target titles first, generic seniority markers
	// at half weight as fallback
	title := strings.ToLower(l.Title)
	matched := false
	for _, t := range s.titles {
		if t != "" && strings.Contains(title, t) {
			b.Title = w.Title
			matched = true
			break
		}
	}
	if !matched {
		for _, marker := range seniorityMarkers {
			if strings.Contains(title, marker) {
				b.Title = w.Title / 2
				break
			}
		}
	}

	// Company size: full points inside the ideal band, half points one
	// band adjacent (size known but outside range)
	if l.CompanySize >= s.cfg.IdealSizeMin && l.CompanySize <= s.cfg.IdealSizeMax {
		b.CompanySize = w.CompanySize
	} else if l.CompanySize > 0 {
		b.CompanySize = w.CompanySize / 2
	}

	// Tech stack: points per matching technology, capped
	for _, tch := range l.TechStack {
		if s.tech[strings.ToLower(strings.TrimSpace(tch))] {
			b.TechStack += w.TechStack
		}
	}
	if b.TechStack > w.TechStackMax {
		b.TechStack = w.TechStackMax
	}

	// Geo: substring match against target regions
	loc := strings.ToLower(l.Location)
	for _, g := range s.geos {
		if g != "" && strings.Contains(loc, g) {
			b.Geo = w.Geo
			break
		}
	}

	// Intent signals: points per signal, capped
	b.IntentSignals = float64(len(l.IntentSignals)) * w.IntentSignal
	if b.IntentSignals > w.IntentMax {
		b.IntentSignals = w.IntentMax
	}

	if l.EmailVerified {
		b.VerifiedEmail = w.VerifiedEmail
	}

	b.Total = b.Industry + b.Title + b.CompanySize + b.TechStack + b.Geo + b.IntentSignals + b.VerifiedEmail
	if b.Total > 100 {
		b.Total = 100
	}
	if b.Total < 0 {
		b.Total = 0
	}

	return Classification{
		LeadID:    l.ID.String(),
		Score:     b.Total,
		Tier:      s.tier(b.Total),
		Breakdown: b,
	}
}

// tier maps a score to an outreach tier using the configured thresholds.
func (s *Segmentor) tier(score float64) lead.Tier {
	switch {
	case score >= s.cfg.HotThreshold:
		return lead.TierHot
	case score >= s.cfg.WarmThreshold:
		return lead.TierWarm
	case score >= s.cfg.NurtureThreshold:
		return lead.TierNurture
	default:
		return lead.TierDisqualified
	}
}

// Classify scores a batch of leads, writes score and tier back onto each
// lead, and returns classifications sorted by score descending.
func (s *Segmentor) Classify(leads []*lead.Lead) []Classification {
	out := make([]Classification, 0, len(leads))
	for _, l := range leads {
		c := s.Score(l)
		l.ICPScore = c.Score
		l.Tier = c.Tier
		l.Status = lead.StatusScored
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
