package enrichment

import (
	"context"
	"errors"
	"testing"

	"github.com/ignite/leadflow/internal/lead"
)

type fakeProvider struct {
	name   string
	result *Result
	err    error
	calls  int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Enrich(ctx context.Context, l *lead.Lead) (*Result, error) {
	f.calls++
	return f.result, f.err
}

func TestWaterfallStopsAtVerifiedEmail(t *testing.T) {
	first := &fakeProvider{name: "apollo", result: &Result{
		Email: "jane@acme.io", EmailVerified: true, Quality: 0.9,
	}}
	second := &fakeProvider{name: "clay"}

	w := NewWaterfall(nil, first, second)
	l := lead.New("", "Acme")
	report, err := w.Enrich(context.Background(), l)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if report.WonBy != "apollo" {
		t.Errorf("Expected apollo to win, got %q", report.WonBy)
	}
	if second.calls != 0 {
		t.Error("Waterfall should stop after the verified email")
	}
	if !l.EmailVerified || l.Email != "jane@acme.io" {
		t.Errorf("Lead not updated: %+v", l)
	}
	if l.Status != lead.StatusEnriched {
		t.Errorf("Status = %q", l.Status)
	}
}

func TestWaterfallMergesPartials(t *testing.T) {
	first := &fakeProvider{name: "apollo", result: &Result{
		Title: "VP Sales", Industry: "SaaS", Quality: 0.3,
	}}
	second := &fakeProvider{name: "bettercontact", result: &Result{
		Email: "jane@acme.io", EmailVerified: true, Quality: 0.7,
	}}

	w := NewWaterfall(nil, first, second)
	l := lead.New("", "Acme")
	report, err := w.Enrich(context.Background(), l)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if l.Title != "VP Sales" {
		t.Error("Partial result from first provider should be merged")
	}
	if l.Email != "jane@acme.io" || report.WonBy != "bettercontact" {
		t.Errorf("Second provider should supply the email: %+v", report)
	}
	if l.EnrichmentQuality != 0.7 {
		t.Errorf("Quality should be the best seen, got %f", l.EnrichmentQuality)
	}
}

func TestWaterfallContinuesPastErrors(t *testing.T) {
	first := &fakeProvider{name: "apollo", err: errors.New("upstream 500")}
	second := &fakeProvider{name: "clay", result: &Result{
		Email: "jane@acme.io", EmailVerified: true, Quality: 0.6,
	}}

	w := NewWaterfall(nil, first, second)
	l := lead.New("", "Acme")
	report, err := w.Enrich(context.Background(), l)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if len(report.Attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(report.Attempts))
	}
	if report.Attempts[0].Err == "" {
		t.Error("First attempt should record the error")
	}
	if report.WonBy != "clay" {
		t.Errorf("Expected clay to win, got %q", report.WonBy)
	}
}

func TestWaterfallAllFail(t *testing.T) {
	w := NewWaterfall(nil,
		&fakeProvider{name: "apollo", err: errors.New("down")},
		&fakeProvider{name: "clay"},
	)
	l := lead.New("jane@acme.io", "Acme")
	if _, err := w.Enrich(context.Background(), l); err == nil {
		t.Error("Expected error when no provider enriches the lead")
	}
	if l.Status == lead.StatusEnriched {
		t.Error("Status must not advance on total failure")
	}
}

func TestWaterfallDemote(t *testing.T) {
	w := NewWaterfall(nil,
		&fakeProvider{name: "apollo"},
		&fakeProvider{name: "bettercontact"},
		&fakeProvider{name: "clay"},
	)

	w.Demote("apollo")
	order := w.Order()
	want := []string{"bettercontact", "clay", "apollo"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("Order after demote = %v, want %v", order, want)
		}
	}

	w.Demote("unknown") // no-op
	if len(w.Order()) != 3 {
		t.Error("Demoting an unknown provider must not change the set")
	}
}

type denyGate struct{ denied string }

func (g *denyGate) AllowProvider(ctx context.Context, provider string) (bool, error) {
	return provider != g.denied, nil
}

func TestWaterfallRespectsRateGate(t *testing.T) {
	first := &fakeProvider{name: "apollo", result: &Result{
		Email: "jane@acme.io", EmailVerified: true, Quality: 0.9,
	}}
	second := &fakeProvider{name: "clay", result: &Result{
		Email: "jane@acme.io", EmailVerified: true, Quality: 0.5,
	}}

	w := NewWaterfall(&denyGate{denied: "apollo"}, first, second)
	l := lead.New("", "Acme")
	report, err := w.Enrich(context.Background(), l)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if first.calls != 0 {
		t.Error("Rate limited provider must not be called")
	}
	if report.WonBy != "clay" {
		t.Errorf("Expected clay to win, got %q", report.WonBy)
	}
}

func TestWaterfallTracksLookupCost(t *testing.T) {
	first := &fakeProvider{name: "apollo"}
	second := &fakeProvider{name: "bettercontact", result: &Result{
		Email: "jane@acme.io", EmailVerified: true, Quality: 0.7,
	}}

	w := NewWaterfall(nil, first, second, &fakeProvider{name: "clay"})
	l := lead.New("", "Acme")
	report, err := w.Enrich(context.Background(), l)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	want := lookupCosts["apollo"] + lookupCosts["bettercontact"]
	if got := report.TotalCost(); got != want {
		t.Errorf("TotalCost = %f, want %f", got, want)
	}
}

func TestResultApplyDoesNotClobber(t *testing.T) {
	l := lead.New("jane@acme.io", "Acme")
	l.Title = "VP Sales"
	l.EmailVerified = true
	l.EnrichmentQuality = 0.8

	r := &Result{Email: "other@acme.io", Title: "Manager", Quality: 0.4}
	r.Apply(l)

	if l.Email != "jane@acme.io" {
		t.Error("Unverified email must not replace a verified one")
	}
	if l.Title != "VP Sales" {
		t.Error("Existing title must not be overwritten")
	}
	if l.EnrichmentQuality != 0.8 {
		t.Error("Quality must not decrease")
	}
}
