package compliance

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
	"github.com/ignite/leadflow/internal/ratelimit"
)

func testConfig() config.ComplianceConfig {
	return config.ComplianceConfig{
		PhysicalAddress:  "100 Main St, Portland OR",
		UnsubscribeURL:   "https://leadflow.example/unsub",
		BannedPhrases:    []string{"get rich quick"},
		DailyEmailCap:    2,
		DailyLinkedInCap: 1,
	}
}

func compliantMessage() Message {
	return Message{
		Subject:     "Quick question about Acme's hiring",
		Body:        "Hi Jane,\n\nSaw your team is growing.\n\n100 Main St, Portland OR\nUnsubscribe: https://leadflow.example/unsub",
		FromAddress: "sdr@leadflow.example",
		Channel:     "email",
	}
}

func testLead() *lead.Lead {
	l := lead.New("jane@acme.io", "Acme")
	l.Source = "apollo_search"
	l.EnrichedBy = "apollo"
	return l
}

func TestValidateCampaignPasses(t *testing.T) {
	v := NewValidator(testConfig(), nil)

	report, err := v.ValidateCampaign(context.Background(), testLead(), compliantMessage())
	if err != nil {
		t.Fatalf("ValidateCampaign failed: %v", err)
	}
	if !report.Passed() {
		t.Errorf("Expected pass, got violations: %+v", report.Violations)
	}
}

func TestValidateCampaignMissingAddress(t *testing.T) {
	v := NewValidator(testConfig(), nil)
	msg := compliantMessage()
	msg.Body = "Hi Jane, unsubscribe here: https://leadflow.example/unsub"

	report, _ := v.ValidateCampaign(context.Background(), testLead(), msg)
	if report.Passed() {
		t.Error("Expected failure for missing physical address")
	}
	if !hasViolation(report, "can_spam_address") {
		t.Errorf("Expected can_spam_address violation, got %+v", report.Violations)
	}
}

func TestValidateCampaignMissingUnsubscribe(t *testing.T) {
	v := NewValidator(testConfig(), nil)
	msg := compliantMessage()
	msg.Body = "Hi Jane.\n100 Main St, Portland OR"

	report, _ := v.ValidateCampaign(context.Background(), testLead(), msg)
	if !hasViolation(report, "can_spam_unsubscribe") {
		t.Error("Expected can_spam_unsubscribe violation")
	}
}

func TestValidateCampaignDeceptiveSubject(t *testing.T) {
	v := NewValidator(testConfig(), nil)
	msg := compliantMessage()
	msg.Subject = "RE: our conversation"

	report, _ := v.ValidateCampaign(context.Background(), testLead(), msg)
	if !hasViolation(report, "can_spam_subject") {
		t.Error("Expected can_spam_subject violation for fake reply")
	}
}

func TestValidateCampaignBannedPhrase(t *testing.T) {
	v := NewValidator(testConfig(), nil)
	msg := compliantMessage()
	msg.Body += "\nGet Rich Quick with us!"

	report, _ := v.ValidateCampaign(context.Background(), testLead(), msg)
	if report.Passed() {
		t.Error("Banned phrase should be critical")
	}
	if !hasViolation(report, "brand_safety") {
		t.Error("Expected brand_safety violation")
	}
}

func TestValidateCampaignSpamTriggerWarnsOnly(t *testing.T) {
	v := NewValidator(testConfig(), nil)
	msg := compliantMessage()
	msg.Body += "\nAct now to book a slot."

	report, _ := v.ValidateCampaign(context.Background(), testLead(), msg)
	if !report.Passed() {
		t.Errorf("Spam trigger word should only warn, got %+v", report.Violations)
	}
	if !hasViolation(report, "spam_trigger") {
		t.Error("Expected spam_trigger warning")
	}
}

func TestValidateCampaignGDPRSource(t *testing.T) {
	v := NewValidator(testConfig(), nil)
	ld := testLead()
	ld.Source = ""

	report, _ := v.ValidateCampaign(context.Background(), ld, compliantMessage())
	if report.Passed() {
		t.Error("Missing lead source should be critical")
	}
	if !hasViolation(report, "gdpr_source") {
		t.Error("Expected gdpr_source violation")
	}
}

func TestValidateCampaignOutreachCap(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	v := NewValidator(testConfig(), ratelimit.NewLimiter(client))
	ctx := context.Background()
	msg := compliantMessage()
	msg.Channel = "linkedin"

	report, err := v.ValidateCampaign(ctx, testLead(), msg)
	if err != nil {
		t.Fatalf("ValidateCampaign failed: %v", err)
	}
	if !report.Passed() {
		t.Fatalf("First LinkedIn send should pass: %+v", report.Violations)
	}

	// Cap is 1/day; the second send must be rejected
	report, err = v.ValidateCampaign(ctx, testLead(), msg)
	if err != nil {
		t.Fatalf("ValidateCampaign failed: %v", err)
	}
	if report.Passed() {
		t.Error("Second LinkedIn send should exceed daily cap")
	}
	if !hasViolation(report, "outreach_cap") {
		t.Error("Expected outreach_cap violation")
	}
}

func hasViolation(r *Report, rule string) bool {
	for _, v := range r.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}
