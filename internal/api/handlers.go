package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/leadflow/internal/annealing"
	"github.com/ignite/leadflow/internal/lead"
	"github.com/ignite/leadflow/internal/pipeline"
	"github.com/ignite/leadflow/internal/pkg/httputil"
	"github.com/ignite/leadflow/internal/repository/postgres"
	"github.com/ignite/leadflow/internal/rl"
	"github.com/ignite/leadflow/internal/safety"
	"github.com/ignite/leadflow/internal/segmentor"
	"github.com/ignite/leadflow/internal/storage"
)

// LeadStore is the subset of the lead repository the API reads from.
// Nil when no database is configured; lead endpoints then return 503.
type LeadStore interface {
	GetByEmail(ctx context.Context, email string) (*lead.Lead, error)
	ListByStatus(ctx context.Context, status lead.Status, limit int) ([]*lead.Lead, error)
	CountByTier(ctx context.Context) (map[string]int, error)
}

// Handlers holds the API's collaborators.
type Handlers struct {
	runner    *pipeline.Runner
	rlEngine  *rl.Engine
	annealer  *annealing.Engine
	segmentor *segmentor.Segmentor
	safe      *safety.Mode
	store     *storage.Storage
	leads     LeadStore
}

// NewHandlers creates the handler set. store and leads may be nil.
func NewHandlers(runner *pipeline.Runner, rlEngine *rl.Engine, annealer *annealing.Engine,
	seg *segmentor.Segmentor, safe *safety.Mode, store *storage.Storage, leads LeadStore) *Handlers {
	return &Handlers{
		runner:    runner,
		rlEngine:  rlEngine,
		annealer:  annealer,
		segmentor: seg,
		safe:      safe,
		store:     store,
		leads:     leads,
	}
}

// HealthCheck reports service liveness and safety state.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status": "healthy",
		"safety": h.safe.Status(),
	})
}

// RunPipeline triggers one synchronous pipeline batch.
func (h *Handlers) RunPipeline(w http.ResponseWriter, r *http.Request) {
	if h.safe.Halted() {
		httputil.Error(w, http.StatusConflict, "pipeline is halted by safe mode")
		return
	}

	report, err := h.runner.Run(r.Context())
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.OK(w, report)
}

// RecentRuns lists archived run records.
func (h *Handlers) RecentRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "run archive not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.store.RecentRuns(r.Context(), limit)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.OK(w, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// ListLeads returns leads by pipeline status plus tier counts.
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	if h.leads == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "lead store not configured")
		return
	}

	status := lead.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = lead.StatusScored
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	leads, err := h.leads.ListByStatus(r.Context(), status, limit)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	tiers, err := h.leads.CountByTier(r.Context())
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}

	httputil.OK(w, map[string]interface{}{
		"leads": leads,
		"count": len(leads),
		"tiers": tiers,
	})
}

// GetLead fetches one lead by email.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	if h.leads == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "lead store not configured")
		return
	}

	email := chi.URLParam(r, "email")
	l, err := h.leads.GetByEmail(r.Context(), email)
	if err == postgres.ErrNotFound {
		httputil.NotFound(w, "lead not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.OK(w, l)
}

// ScoreLead scores a lead payload without persisting it, returning the
// full breakdown for explainability.
func (h *Handlers) ScoreLead(w http.ResponseWriter, r *http.Request) {
	var l lead.Lead
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		httputil.BadRequest(w, "invalid lead payload: "+err.Error())
		return
	}

	classification := h.segmentor.Score(&l)
	httputil.OK(w, classification)
}

// RLStats exposes the Q-learning engine internals.
func (h *Handlers) RLStats(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.rlEngine.Stats())
}

// AnnealingPatterns returns the detected outcome patterns and the
// refinements they would produce.
func (h *Handlers) AnnealingPatterns(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"patterns":    h.annealer.DetectPatterns(),
		"refinements": h.annealer.Refine(),
	})
}

// SafetyStatus reports the current safe-mode state.
func (h *Handlers) SafetyStatus(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.safe.Status())
}

// EngageSafeMode halts the pipeline with an operator-supplied reason.
func (h *Handlers) EngageSafeMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason     string `json:"reason"`
		KillSwitch bool   `json:"kill_switch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid request: "+err.Error())
		return
	}
	if req.Reason == "" {
		httputil.BadRequest(w, "reason is required")
		return
	}

	if req.KillSwitch {
		if err := h.safe.TripKillSwitch(req.Reason); err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
	} else {
		h.safe.Engage(req.Reason)
	}
	httputil.OK(w, h.safe.Status())
}

// DisengageSafeMode clears programmatic safe mode. The kill switch file
// must be removed on disk by an operator.
func (h *Handlers) DisengageSafeMode(w http.ResponseWriter, r *http.Request) {
	h.safe.Disengage()
	httputil.OK(w, h.safe.Status())
}
