package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ignite/leadflow/internal/aidefence"
	"github.com/ignite/leadflow/internal/annealing"
	"github.com/ignite/leadflow/internal/compliance"
	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/contextmgr"
	"github.com/ignite/leadflow/internal/crafter"
	"github.com/ignite/leadflow/internal/enrichment"
	"github.com/ignite/leadflow/internal/lead"
	"github.com/ignite/leadflow/internal/rl"
	"github.com/ignite/leadflow/internal/safety"
	"github.com/ignite/leadflow/internal/scraper"
	"github.com/ignite/leadflow/internal/segmentor"
)

type fakeEnricher struct{ fail bool }

func (f *fakeEnricher) Name() string { return "fake" }

func (f *fakeEnricher) Enrich(ctx context.Context, l *lead.Lead) (*enrichment.Result, error) {
	if f.fail {
		return nil, errors.New("provider down")
	}
	return &enrichment.Result{
		Email:         l.Email,
		EmailVerified: true,
		Quality:       0.9,
	}, nil
}

type fakeDeliverer struct {
	queued []string
	err    error
}

func (f *fakeDeliverer) QueueLead(ctx context.Context, l *lead.Lead, subject, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.queued = append(f.queued, l.Email)
	return fmt.Sprintf("il-%d", len(f.queued)), nil
}

type fakeSyncer struct {
	upserts int
	notes   int
}

func (f *fakeSyncer) UpsertContact(ctx context.Context, l *lead.Lead) (string, error) {
	f.upserts++
	return "ct-1", nil
}

func (f *fakeSyncer) AddNote(ctx context.Context, contactID, note string) error {
	f.notes++
	return nil
}

type fakeLeadSink struct {
	saved map[string]lead.Status
}

func (f *fakeLeadSink) Upsert(ctx context.Context, l *lead.Lead) error {
	if f.saved == nil {
		f.saved = map[string]lead.Status{}
	}
	f.saved[l.Email] = l.Status
	return nil
}

func hotLead(email string) *lead.Lead {
	l := lead.New(email, "Acme")
	l.FirstName = "Jane"
	l.Title = "VP Sales"
	l.Industry = "SaaS"
	l.CompanySize = 100
	l.Location = "Austin, TX"
	l.Source = "test"
	l.EmailVerified = true
	l.IntentSignals = []string{"hiring SDRs", "raised series B"}
	l.TechStack = []string{"Salesforce"}
	return l
}

func testCrafter() *crafter.Crafter {
	c := crafter.New()
	body := "Hi {{ first_name }},\n\nWorth a chat about {{ company }}?\n\n" +
		"Ignite, 500 Congress Ave, Austin TX 78701\nUnsubscribe: https://ignite.io/u"
	for _, action := range rl.DefaultActions() {
		c.Register(crafter.Template{
			Name:     string(action),
			Strategy: string(action),
			Subject:  "{{ company }} + Ignite",
			Body:     body,
		})
	}
	return c
}

func testRunner(t *testing.T, deliverer Deliverer, syncer Syncer, enricher enrichment.Provider) (*Runner, *safety.Mode) {
	t.Helper()
	dir := t.TempDir()

	rlEngine, err := rl.NewEngine(config.RLConfig{
		Alpha: 0.1, Gamma: 0.9, Epsilon: 0.1, EpsilonMin: 0.02,
		EpsilonDecay: 0.995, StatePath: filepath.Join(dir, "qtable.json"),
	})
	if err != nil {
		t.Fatal(err)
	}
	rlEngine.SetSeed(1)

	annealer, err := annealing.NewEngine(config.AnnealingConfig{
		OutcomeLogPath: filepath.Join(dir, "outcomes.json"),
		WindowSize:     100, MinSupport: 3, FailureRateTrip: 0.9, MinOutcomesTrip: 50,
	})
	if err != nil {
		t.Fatal(err)
	}

	seg := segmentor.New(config.ScoringConfig{
		TargetIndustries: []string{"SaaS"},
		TargetTitles:     []string{"VP Sales"},
		TargetTech:       []string{"Salesforce"},
		TargetGeos:       []string{"Austin"},
		IdealSizeMin:     11, IdealSizeMax: 200,
		HotThreshold: 80, WarmThreshold: 60, NurtureThreshold: 40,
	})

	validator := compliance.NewValidator(config.ComplianceConfig{
		PhysicalAddress: "500 Congress Ave, Austin TX 78701",
		UnsubscribeURL:  "https://ignite.io/u",
	}, nil)

	safe := safety.NewMode(filepath.Join(dir, "KILL_SWITCH"))

	runner := NewRunner(config.PipelineConfig{BatchSize: 10}, Deps{
		FromEmail: "sdr@ignite.io",
		Sources: []scraper.Source{scraper.NewStaticSource([]*lead.Lead{
			hotLead("jane@acme.io"),
			hotLead("amy@beta.co"),
		})},
		Waterfall: enrichment.NewWaterfall(nil, enricher),
		Segmentor: seg,
		RL:        rlEngine,
		Annealer:  annealer,
		Crafter:   testCrafter(),
		Validator: validator,
		Detector:  aidefence.NewDetector(0, 0),
		Safety:    safe,
		Threads:   contextmgr.NewManager(dir, 0),
		Deliverer: deliverer,
		Syncer:    syncer,
	})
	return runner, safe
}

func TestRunDeliversBatch(t *testing.T) {
	deliverer := &fakeDeliverer{}
	syncer := &fakeSyncer{}
	runner, _ := testRunner(t, deliverer, syncer, &fakeEnricher{})

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.LeadsIn != 2 || report.Enriched != 2 {
		t.Errorf("Report = %+v", report)
	}
	if report.Delivered != 2 || len(deliverer.queued) != 2 {
		t.Errorf("Expected 2 deliveries, got %d (queued %v)", report.Delivered, deliverer.queued)
	}
	if syncer.upserts != 2 || syncer.notes != 2 {
		t.Errorf("CRM sync counts: upserts=%d notes=%d", syncer.upserts, syncer.notes)
	}
	if report.Halted {
		t.Error("Run should not halt")
	}

	stages := map[string]bool{}
	for _, timing := range report.Timings {
		stages[timing.Stage] = true
	}
	for _, want := range []string{"scrape", "enrich", "score", "deliver", "anneal"} {
		if !stages[want] {
			t.Errorf("Missing stage timing %q", want)
		}
	}
}

func TestRunPersistsLeadState(t *testing.T) {
	sink := &fakeLeadSink{}
	runner, _ := testRunner(t, &fakeDeliverer{}, &fakeSyncer{}, &fakeEnricher{})
	runner.leadSink = sink

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sink.saved) != 2 {
		t.Fatalf("Persisted %d leads, want 2", len(sink.saved))
	}
	for email, status := range sink.saved {
		if status != lead.StatusSynced {
			t.Errorf("Lead %s persisted with status %s, want %s", email, status, lead.StatusSynced)
		}
	}
}

func TestRunHaltsOnKillSwitch(t *testing.T) {
	deliverer := &fakeDeliverer{}
	runner, safe := testRunner(t, deliverer, &fakeSyncer{}, &fakeEnricher{})
	safe.Engage("operator halt")

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.Halted || report.HaltReason != "operator halt" {
		t.Errorf("Report = %+v", report)
	}
	if len(deliverer.queued) != 0 {
		t.Error("Nothing should be delivered after halt")
	}
}

func TestRunEnrichmentFailureDoesNotDeliver(t *testing.T) {
	deliverer := &fakeDeliverer{}
	runner, _ := testRunner(t, deliverer, &fakeSyncer{}, &fakeEnricher{fail: true})

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Enriched != 0 || report.Failed != 2 {
		t.Errorf("Report = %+v", report)
	}
	if len(deliverer.queued) != 0 {
		t.Error("Failed leads must not be delivered")
	}
}

func TestRunDeliveryFailureRecordsNegativeOutcome(t *testing.T) {
	deliverer := &fakeDeliverer{err: errors.New("campaign full")}
	runner, _ := testRunner(t, deliverer, &fakeSyncer{}, &fakeEnricher{})

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Delivered != 0 || report.Failed != 2 {
		t.Errorf("Report = %+v", report)
	}
}

func TestRunWithoutDelivererLeavesQueued(t *testing.T) {
	runner, _ := testRunner(t, nil, nil, &fakeEnricher{})

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Delivered != 0 || report.Failed != 0 {
		t.Errorf("Report = %+v", report)
	}
}
