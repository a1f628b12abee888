package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ignite/leadflow/internal/annealing"
	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
	"github.com/ignite/leadflow/internal/repository/postgres"
	"github.com/ignite/leadflow/internal/rl"
	"github.com/ignite/leadflow/internal/safety"
	"github.com/ignite/leadflow/internal/segmentor"
)

type fakeLeadStore struct {
	leads map[string]*lead.Lead
}

func (f *fakeLeadStore) GetByEmail(ctx context.Context, email string) (*lead.Lead, error) {
	l, ok := f.leads[email]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return l, nil
}

func (f *fakeLeadStore) ListByStatus(ctx context.Context, status lead.Status, limit int) ([]*lead.Lead, error) {
	var out []*lead.Lead
	for _, l := range f.leads {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeadStore) CountByTier(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	for _, l := range f.leads {
		counts[string(l.Tier)]++
	}
	return counts, nil
}

func testHandlers(t *testing.T, leads LeadStore) (*Handlers, *safety.Mode) {
	t.Helper()
	dir := t.TempDir()

	rlEngine, err := rl.NewEngine(config.RLConfig{
		Alpha: 0.1, Gamma: 0.9, Epsilon: 0.1, EpsilonMin: 0.02,
		EpsilonDecay: 0.995, StatePath: filepath.Join(dir, "qtable.json"),
	})
	if err != nil {
		t.Fatal(err)
	}
	annealer, err := annealing.NewEngine(config.AnnealingConfig{
		OutcomeLogPath: filepath.Join(dir, "outcomes.json"),
		WindowSize:     100, MinSupport: 3, FailureRateTrip: 0.5, MinOutcomesTrip: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	seg := segmentor.New(config.ScoringConfig{
		TargetIndustries: []string{"SaaS"},
		TargetTitles:     []string{"VP Sales"},
		IdealSizeMin:     11, IdealSizeMax: 200,
		HotThreshold: 80, WarmThreshold: 60, NurtureThreshold: 40,
	})
	safe := safety.NewMode(filepath.Join(dir, "KILL_SWITCH"))

	return NewHandlers(nil, rlEngine, annealer, seg, safe, nil, leads), safe
}

func TestHealthCheck(t *testing.T) {
	h, _ := testHandlers(t, nil)
	router := SetupRoutes(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d", rec.Code)
	}
	var body map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "healthy" {
		t.Errorf("Body = %v", body)
	}
}

func TestRunPipelineHalted(t *testing.T) {
	h, safe := testHandlers(t, nil)
	safe.Engage("maintenance")
	router := SetupRoutes(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pipeline/run", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("Status = %d, want 409", rec.Code)
	}
}

func TestScoreLead(t *testing.T) {
	h, _ := testHandlers(t, nil)
	router := SetupRoutes(h)

	payload := `{"email":"jane@acme.io","company":"Acme","industry":"SaaS","title":"VP Sales","company_size":100,"email_verified":true,"source":"test"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/leads/score", strings.NewReader(payload))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d: %s", rec.Code, rec.Body.String())
	}
	var c segmentor.Classification
	json.NewDecoder(rec.Body).Decode(&c)
	if c.Score <= 0 {
		t.Errorf("Score = %f", c.Score)
	}
	if c.Breakdown.Industry <= 0 || c.Breakdown.Title <= 0 {
		t.Errorf("Breakdown = %+v", c.Breakdown)
	}
}

func TestScoreLeadBadPayload(t *testing.T) {
	h, _ := testHandlers(t, nil)
	router := SetupRoutes(h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/leads/score", strings.NewReader("{not json"))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
}

func TestGetLead(t *testing.T) {
	l := lead.New("jane@acme.io", "Acme")
	l.Status = lead.StatusScored
	store := &fakeLeadStore{leads: map[string]*lead.Lead{"jane@acme.io": l}}

	h, _ := testHandlers(t, store)
	router := SetupRoutes(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leads/jane@acme.io", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leads/ghost@acme.io", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", rec.Code)
	}
}

func TestListLeadsWithoutStore(t *testing.T) {
	h, _ := testHandlers(t, nil)
	router := SetupRoutes(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leads", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", rec.Code)
	}
}

func TestSafetyEndpoints(t *testing.T) {
	h, safe := testHandlers(t, nil)
	router := SetupRoutes(h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/safety/engage",
		strings.NewReader(`{"reason":"bad bounce rate"}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Engage status = %d", rec.Code)
	}
	if !safe.Halted() {
		t.Error("Safe mode should be engaged")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/safety/disengage", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Disengage status = %d", rec.Code)
	}
	if safe.Halted() {
		t.Error("Safe mode should be cleared")
	}
}

func TestEngageSafeModeRequiresReason(t *testing.T) {
	h, _ := testHandlers(t, nil)
	router := SetupRoutes(h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/safety/engage", strings.NewReader(`{}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
}

func TestRLStats(t *testing.T) {
	h, _ := testHandlers(t, nil)
	router := SetupRoutes(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rl/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d", rec.Code)
	}
	var stats rl.Stats
	json.NewDecoder(rec.Body).Decode(&stats)
	if stats.Epsilon != 0.1 {
		t.Errorf("Epsilon = %f", stats.Epsilon)
	}
}

func TestAnnealingPatterns(t *testing.T) {
	h, _ := testHandlers(t, nil)
	for i := 0; i < 5; i++ {
		h.annealer.Record(annealing.Outcome{Stage: "enrich", Tier: "warm", Action: "clay", Success: false})
	}
	router := SetupRoutes(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/annealing/patterns", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clay") {
		t.Errorf("Patterns missing: %s", rec.Body.String())
	}
}
