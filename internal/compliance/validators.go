// Package compliance runs rule-based checks over outbound campaigns before
// anything leaves the system: CAN-SPAM structure, GDPR record keeping,
// brand safety, and per-channel outreach caps.
package compliance

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
	"github.com/ignite/leadflow/internal/ratelimit"
)

// Severity ranks a violation.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Violation is one failed compliance rule.
type Violation struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Report is the outcome of validating one campaign message.
type Report struct {
	Violations []Violation `json:"violations"`
}

// Passed reports whether the message may be sent. Warnings do not block.
func (r *Report) Passed() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityCritical {
			return false
		}
	}
	return true
}

func (r *Report) add(rule string, sev Severity, format string, args ...interface{}) {
	r.Violations = append(r.Violations, Violation{
		Rule:     rule,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Message is the outbound content under validation.
type Message struct {
	Subject     string
	Body        string
	FromAddress string
	Channel     string // "email" or "linkedin"
}

// Validator runs the compliance rule set.
type Validator struct {
	cfg     config.ComplianceConfig
	limiter *ratelimit.Limiter // nil disables outreach cap checks
}

// NewValidator creates a validator. limiter may be nil when redis is not
// configured (sandbox runs); rate cap checks are then skipped.
func NewValidator(cfg config.ComplianceConfig, limiter *ratelimit.Limiter) *Validator {
	return &Validator{cfg: cfg, limiter: limiter}
}

var (
	unsubscribeRegex = regexp.MustCompile(`(?i)(unsubscribe|opt[ -]?out|manage preferences)`)
	// Subject prefixes the FTC calls out as deceptive for commercial mail
	deceptiveSubjectRegex = regexp.MustCompile(`(?i)^(re:|fwd?:)\s`)
	spamTriggerWords      = []string{
		"act now", "100% free", "risk-free", "guaranteed income",
		"no obligation", "winner", "click here now", "limited time offer",
	}
)

// ValidateCampaign checks a rendered message for the given lead and
// returns a report of violations. The lead is consulted for GDPR record
// requirements (source of data must be known).
func (v *Validator) ValidateCampaign(ctx context.Context, ld *lead.Lead, msg Message) (*Report, error) {
	report := &Report{}

	v.checkCANSPAM(report, msg)
	v.checkBrandSafety(report, msg)
	v.checkGDPR(report, ld)

	if v.limiter != nil && msg.Channel != "" {
		allowed, err := v.checkOutreachCap(ctx, msg.Channel)
		if err != nil {
			return nil, fmt.Errorf("outreach cap check: %w", err)
		}
		if !allowed {
			report.add("outreach_cap", SeverityCritical,
				"daily %s outreach cap reached", msg.Channel)
		}
	}

	return report, nil
}

// checkCANSPAM verifies the structural CAN-SPAM requirements: a physical
// postal address, a working unsubscribe mechanism, and a non-deceptive
// subject line.
func (v *Validator) checkCANSPAM(r *Report, msg Message) {
	if v.cfg.PhysicalAddress == "" || !strings.Contains(msg.Body, v.cfg.PhysicalAddress) {
		r.add("can_spam_address", SeverityCritical,
			"body must include the sender's physical postal address")
	}
	hasUnsub := unsubscribeRegex.MatchString(msg.Body)
	if v.cfg.UnsubscribeURL != "" && strings.Contains(msg.Body, v.cfg.UnsubscribeURL) {
		hasUnsub = true
	}
	if !hasUnsub {
		r.add("can_spam_unsubscribe", SeverityCritical,
			"body must include an unsubscribe mechanism")
	}
	if deceptiveSubjectRegex.MatchString(msg.Subject) {
		r.add("can_spam_subject", SeverityCritical,
			"subject must not fake a reply or forward thread")
	}
	if strings.TrimSpace(msg.FromAddress) == "" {
		r.add("can_spam_from", SeverityCritical, "from address is required")
	}
}

// checkBrandSafety flags configured banned phrases and common spam
// trigger words. Banned phrases are critical; trigger words warn only.
func (v *Validator) checkBrandSafety(r *Report, msg Message) {
	content := strings.ToLower(msg.Subject + " " + msg.Body)
	for _, phrase := range v.cfg.BannedPhrases {
		if phrase != "" && strings.Contains(content, strings.ToLower(phrase)) {
			r.add("brand_safety", SeverityCritical, "banned phrase present: %q", phrase)
		}
	}
	for _, word := range spamTriggerWords {
		if strings.Contains(content, word) {
			r.add("spam_trigger", SeverityWarning, "spam trigger word present: %q", word)
		}
	}
}

// checkGDPR verifies the records GDPR requires us to keep for outreach:
// where the contact data came from, and (when configured) a lawful basis
// in the form of a recorded source for EU-located leads.
func (v *Validator) checkGDPR(r *Report, ld *lead.Lead) {
	if ld == nil {
		return
	}
	if ld.Source == "" {
		r.add("gdpr_source", SeverityCritical,
			"lead has no recorded data source")
	}
	if v.cfg.RequireLawfulBasis && ld.EnrichedBy == "" {
		r.add("gdpr_lawful_basis", SeverityWarning,
			"lead has no enrichment provenance recorded")
	}
}

// checkOutreachCap consumes one send from the channel's daily cap.
func (v *Validator) checkOutreachCap(ctx context.Context, channel string) (bool, error) {
	cap := v.cfg.DailyEmailCap
	if channel == "linkedin" {
		cap = v.cfg.DailyLinkedInCap
	}
	return v.limiter.AllowDaily(ctx, "outreach:"+channel, cap)
}
