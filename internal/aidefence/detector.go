// Package aidefence scans text moving through the pipeline for PII
// exposure and prompt-injection style threats. Every pattern carries a
// static confidence weight; findings aggregate into a risk score that
// gates whether content may leave the system.
package aidefence

import (
	"regexp"
	"sort"
	"strings"
)

// Category classifies a detection pattern.
type Category string

const (
	CategoryPII    Category = "pii"
	CategoryThreat Category = "threat"
	CategorySecret Category = "secret"
)

// Verdict is the gate decision for scanned content.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictFlag  Verdict = "flag"
	VerdictBlock Verdict = "block"
)

// Pattern is a single detection rule with a static confidence weight.
type Pattern struct {
	Name       string
	Category   Category
	Regex      *regexp.Regexp
	Confidence float64 // 0.0 - 1.0
	Mask       string  // replacement used by Sanitize
}

// Finding is one pattern match in scanned text.
type Finding struct {
	Pattern    string   `json:"pattern"`
	Category   Category `json:"category"`
	Match      string   `json:"match"`
	Confidence float64  `json:"confidence"`
	Offset     int      `json:"offset"`
}

// ScanResult aggregates all findings for a piece of text.
type ScanResult struct {
	Findings  []Finding `json:"findings"`
	RiskScore float64   `json:"risk_score"` // max confidence across findings
	Verdict   Verdict   `json:"verdict"`
}

// Detector scans text against a fixed pattern set.
type Detector struct {
	patterns       []Pattern
	flagThreshold  float64
	blockThreshold float64
}

// defaultPatterns covers the PII and injection surface the pipeline cares
// about. Confidence weights reflect false-positive likelihood: structured
// identifiers (SSN, card) are near-certain, free-text heuristics are lower.
func defaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:       "email",
			Category:   CategoryPII,
			Regex:      regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
			Confidence: 0.9,
			Mask:       "[EMAIL]",
		},
		{
			Name:       "phone",
			Category:   CategoryPII,
			Regex:      regexp.MustCompile(`\+?\d{1,2}[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`),
			Confidence: 0.7,
			Mask:       "[PHONE]",
		},
		{
			Name:       "ssn",
			Category:   CategoryPII,
			Regex:      regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Confidence: 0.95,
			Mask:       "[SSN]",
		},
		{
			Name:       "credit_card",
			Category:   CategoryPII,
			Regex:      regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),
			Confidence: 0.85,
			Mask:       "[CARD]",
		},
		{
			Name:       "api_key",
			Category:   CategorySecret,
			Regex:      regexp.MustCompile(`\b(?:sk|pk|api|key|token)[_-][A-Za-z0-9]{16,}\b`),
			Confidence: 0.8,
			Mask:       "[KEY]",
		},
		{
			Name:       "aws_access_key",
			Category:   CategorySecret,
			Regex:      regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
			Confidence: 0.95,
			Mask:       "[KEY]",
		},
		{
			Name:       "prompt_injection",
			Category:   CategoryThreat,
			Regex:      regexp.MustCompile(`(?i)ignore (all )?(previous|prior|above) (instructions|prompts)`),
			Confidence: 0.9,
			Mask:       "[REDACTED]",
		},
		{
			Name:       "system_prompt_probe",
			Category:   CategoryThreat,
			Regex:      regexp.MustCompile(`(?i)(reveal|print|show|repeat) (your )?(system prompt|instructions)`),
			Confidence: 0.8,
			Mask:       "[REDACTED]",
		},
		{
			Name:       "role_override",
			Category:   CategoryThreat,
			Regex:      regexp.MustCompile(`(?i)you are now (a|an|in) `),
			Confidence: 0.6,
			Mask:       "[REDACTED]",
		},
	}
}

// NewDetector creates a detector with the default pattern set.
// Content at or above flagThreshold is flagged; at or above blockThreshold
// it is blocked. Zero values fall back to 0.6 / 0.9.
func NewDetector(flagThreshold, blockThreshold float64) *Detector {
	if flagThreshold == 0 {
		flagThreshold = 0.6
	}
	if blockThreshold == 0 {
		blockThreshold = 0.9
	}
	return &Detector{
		patterns:       defaultPatterns(),
		flagThreshold:  flagThreshold,
		blockThreshold: blockThreshold,
	}
}

// AddPattern registers an additional detection rule.
func (d *Detector) AddPattern(p Pattern) {
	d.patterns = append(d.patterns, p)
}

// Scan runs every pattern against the text and returns aggregated findings.
// RiskScore is the maximum confidence among findings; threat findings in
// any amount push the verdict to at least Flag.
func (d *Detector) Scan(text string) ScanResult {
	var result ScanResult

	for _, p := range d.patterns {
		locs := p.Regex.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			result.Findings = append(result.Findings, Finding{
				Pattern:    p.Name,
				Category:   p.Category,
				Match:      text[loc[0]:loc[1]],
				Confidence: p.Confidence,
				Offset:     loc[0],
			})
			if p.Confidence > result.RiskScore {
				result.RiskScore = p.Confidence
			}
		}
	}

	sort.Slice(result.Findings, func(i, j int) bool {
		return result.Findings[i].Offset < result.Findings[j].Offset
	})

	result.Verdict = d.verdict(result)
	return result
}

func (d *Detector) verdict(r ScanResult) Verdict {
	if r.RiskScore >= d.blockThreshold {
		return VerdictBlock
	}
	if r.RiskScore >= d.flagThreshold {
		return VerdictFlag
	}
	for _, f := range r.Findings {
		if f.Category == CategoryThreat {
			return VerdictFlag
		}
	}
	return VerdictAllow
}

// Sanitize replaces every pattern match in the text with its mask.
// Patterns are applied in registration order, so structured identifiers
// mask before looser heuristics see the text.
func (d *Detector) Sanitize(text string) string {
	for _, p := range d.patterns {
		text = p.Regex.ReplaceAllString(text, p.Mask)
	}
	return text
}

// ScanFields scans a set of named fields (e.g. a rendered email) and
// returns per-field results keyed by field name, skipping clean fields.
func (d *Detector) ScanFields(fields map[string]string) map[string]ScanResult {
	out := make(map[string]ScanResult)
	for name, text := range fields {
		if strings.TrimSpace(text) == "" {
			continue
		}
		r := d.Scan(text)
		if len(r.Findings) > 0 {
			out[name] = r
		}
	}
	return out
}
