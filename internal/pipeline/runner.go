// Package pipeline orchestrates one outreach batch end to end:
// scrape, enrich, score, craft, validate, select a strategy, deliver,
// sync CRM, record outcomes, and anneal. The kill switch is checked
// between stages; a halted run stops where it is and reports.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/leadflow/internal/aidefence"
	"github.com/ignite/leadflow/internal/annealing"
	"github.com/ignite/leadflow/internal/compliance"
	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/contextmgr"
	"github.com/ignite/leadflow/internal/crafter"
	"github.com/ignite/leadflow/internal/enrichment"
	"github.com/ignite/leadflow/internal/lead"
	"github.com/ignite/leadflow/internal/pkg/logger"
	"github.com/ignite/leadflow/internal/rl"
	"github.com/ignite/leadflow/internal/safety"
	"github.com/ignite/leadflow/internal/scraper"
	"github.com/ignite/leadflow/internal/segmentor"
	"github.com/ignite/leadflow/internal/storage"
)

// Deliverer queues a crafted message for a lead. Implemented by the
// Instantly client and the sandbox.
type Deliverer interface {
	QueueLead(ctx context.Context, l *lead.Lead, subject, body string) (string, error)
}

// Syncer pushes delivered leads into the CRM.
type Syncer interface {
	UpsertContact(ctx context.Context, l *lead.Lead) (string, error)
	AddNote(ctx context.Context, contactID, note string) error
}

// Polisher rewrites a crafted message (Bedrock copywriter).
type Polisher interface {
	Polish(ctx context.Context, msg *crafter.Message) (*crafter.Message, error)
}

// Archiver persists run artifacts. *storage.Storage satisfies this.
type Archiver interface {
	SaveRunRecord(ctx context.Context, record storage.RunRecord) error
	SaveLeadBatch(ctx context.Context, runID string, leads []*lead.Lead) error
}

// LeadSink persists each lead's final state after a run. Implemented by
// the Postgres lead repository.
type LeadSink interface {
	Upsert(ctx context.Context, l *lead.Lead) error
}

// StageTiming records how long one stage took across the batch.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes one pipeline run.
type Report struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	LeadsIn    int           `json:"leads_in"`
	Enriched   int           `json:"enriched"`
	Delivered  int           `json:"delivered"`
	Suppressed int           `json:"suppressed"`
	Failed     int           `json:"failed"`
	Halted     bool          `json:"halted"`
	HaltReason string        `json:"halt_reason,omitempty"`
	Timings    []StageTiming `json:"timings"`
}

// Runner wires the pipeline stages together. Optional collaborators
// (deliverer, syncer, polisher, archiver) may be nil and their stages
// degrade gracefully.
type Runner struct {
	cfg       config.PipelineConfig
	fromEmail string

	sources   []scraper.Source
	waterfall *enrichment.Waterfall
	segmentor *segmentor.Segmentor
	rlEngine  *rl.Engine
	annealer  *annealing.Engine
	crafter   *crafter.Crafter
	news      *crafter.NewsFetcher
	validator *compliance.Validator
	detector  *aidefence.Detector
	safe      *safety.Mode
	threads   *contextmgr.Manager

	deliverer Deliverer
	syncer    Syncer
	polisher  Polisher
	archiver  Archiver
	leadSink  LeadSink
}

// Deps bundles the runner's collaborators.
type Deps struct {
	FromEmail string
	Sources   []scraper.Source
	Waterfall *enrichment.Waterfall
	Segmentor *segmentor.Segmentor
	RL        *rl.Engine
	Annealer  *annealing.Engine
	Crafter   *crafter.Crafter
	News      *crafter.NewsFetcher
	Validator *compliance.Validator
	Detector  *aidefence.Detector
	Safety    *safety.Mode
	Threads   *contextmgr.Manager
	Deliverer Deliverer
	Syncer    Syncer
	Polisher  Polisher
	Archiver  Archiver
	Leads     LeadSink
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg config.PipelineConfig, deps Deps) *Runner {
	return &Runner{
		cfg:       cfg,
		fromEmail: deps.FromEmail,
		sources:   deps.Sources,
		waterfall: deps.Waterfall,
		segmentor: deps.Segmentor,
		rlEngine:  deps.RL,
		annealer:  deps.Annealer,
		crafter:   deps.Crafter,
		news:      deps.News,
		validator: deps.Validator,
		detector:  deps.Detector,
		safe:      deps.Safety,
		threads:   deps.Threads,
		deliverer: deps.Deliverer,
		syncer:    deps.Syncer,
		polisher:  deps.Polisher,
		archiver:  deps.Archiver,
		leadSink:  deps.Leads,
	}
}

// Run executes one batch. It returns a report even on halt; the error
// is non-nil only for unrecoverable setup failures.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	if r.halted(report, "start") {
		return report, nil
	}

	// Stage: scrape
	leads, err := r.scrape(ctx, report)
	if err != nil {
		return report, err
	}
	report.LeadsIn = len(leads)
	if len(leads) == 0 {
		log.Printf("pipeline: run %s found no leads", report.RunID)
		r.finish(ctx, report, leads)
		return report, nil
	}
	if r.halted(report, "scrape") {
		r.finish(ctx, report, leads)
		return report, nil
	}

	// Stage: enrich
	start := time.Now()
	for _, l := range leads {
		r.enrichLead(ctx, l, report)
	}
	r.timing(report, "enrich", start)
	if r.halted(report, "enrich") {
		r.finish(ctx, report, leads)
		return report, nil
	}

	// Stage: score
	start = time.Now()
	r.segmentor.Classify(leads)
	for _, l := range leads {
		r.event(l, "score", fmt.Sprintf("scored %.1f tier=%s", l.ICPScore, l.Tier))
		r.annealer.Record(annealing.Outcome{
			Stage:   "score",
			Tier:    string(l.Tier),
			Action:  "icp",
			Success: l.Tier != lead.TierDisqualified,
		})
	}
	r.timing(report, "score", start)
	if r.halted(report, "score") {
		r.finish(ctx, report, leads)
		return report, nil
	}

	// Stages: craft, comply, deliver, sync per lead
	start = time.Now()
	for _, l := range leads {
		if r.safe.Halted() {
			break
		}
		r.processLead(ctx, l, report)
	}
	r.timing(report, "deliver", start)
	if r.safe.Halted() {
		status := r.safe.Status()
		report.Halted = true
		report.HaltReason = status.Reason
	}

	// Stage: anneal
	start = time.Now()
	r.applyRefinements()
	r.timing(report, "anneal", start)

	r.finish(ctx, report, leads)
	return report, nil
}

// scrape pulls up to BatchSize leads across the configured sources.
func (r *Runner) scrape(ctx context.Context, report *Report) ([]*lead.Lead, error) {
	start := time.Now()
	defer func() { r.timing(report, "scrape", start) }()

	var leads []*lead.Lead
	seen := map[string]bool{}
	for _, src := range r.sources {
		remaining := r.cfg.BatchSize - len(leads)
		if remaining <= 0 {
			break
		}
		batch, err := src.Fetch(ctx, remaining)
		if err != nil {
			log.Printf("pipeline: source %s failed: %v", src.Name(), err)
			continue
		}
		for _, l := range batch {
			if l.Email != "" && seen[l.Email] {
				continue
			}
			r.screenLead(l)
			if l.Email != "" {
				seen[l.Email] = true
			}
			leads = append(leads, l)
		}
	}
	if ctx.Err() != nil {
		return leads, ctx.Err()
	}
	return leads, nil
}

// screenLead runs the AI-defence scan over free-text fields scraped
// from outside. Threat content is sanitized in place.
func (r *Runner) screenLead(l *lead.Lead) {
	if r.detector == nil {
		return
	}
	for _, field := range []*string{&l.FirstName, &l.LastName, &l.Title, &l.Company} {
		result := r.detector.Scan(*field)
		if result.Verdict == aidefence.VerdictBlock || result.Verdict == aidefence.VerdictFlag {
			for _, f := range result.Findings {
				if f.Category == aidefence.CategoryThreat {
					*field = r.detector.Sanitize(*field)
					r.event(l, "screen", "sanitized threat content in scraped field")
					break
				}
			}
		}
	}
}

func (r *Runner) enrichLead(ctx context.Context, l *lead.Lead, report *Report) {
	runReport, err := r.waterfall.Enrich(ctx, l)
	success := err == nil
	provider := l.EnrichedBy
	if provider == "" && len(runReport.Attempts) > 0 {
		provider = runReport.Attempts[len(runReport.Attempts)-1].Provider
	}

	r.annealer.Record(annealing.Outcome{
		Stage:   "enrich",
		Tier:    string(l.Tier),
		Action:  provider,
		Success: success,
	})

	if err != nil {
		l.Status = lead.StatusFailed
		report.Failed++
		r.event(l, "enrich", fmt.Sprintf("enrichment failed: %v", err))
		return
	}
	report.Enriched++
	r.event(l, "enrich", fmt.Sprintf("enriched by %s quality=%.2f", l.EnrichedBy, l.EnrichmentQuality))
}

// processLead runs craft, comply, select, deliver, sync for one lead.
func (r *Runner) processLead(ctx context.Context, l *lead.Lead, report *Report) {
	if l.Status == lead.StatusFailed || l.Tier == lead.TierDisqualified || l.Email == "" {
		if l.Tier == lead.TierDisqualified {
			l.Status = lead.StatusSuppressed
			report.Suppressed++
			r.event(l, "segment", "disqualified, suppressed")
		}
		return
	}

	// Select a strategy arm
	state := rl.StateFor(l, "new")
	action, explored := r.rlEngine.SelectAction(state)
	r.event(l, "select", fmt.Sprintf("strategy=%s explored=%v", action, explored))

	// Craft
	tmpl, ok := r.crafter.TemplateForStrategy(string(action))
	if !ok {
		report.Failed++
		l.Status = lead.StatusFailed
		r.event(l, "craft", fmt.Sprintf("no template for strategy %s", action))
		return
	}
	msg, err := r.crafter.Render(tmpl.Name, crafter.Bindings(l, r.newsExtras(ctx, l)), crafter.RenderModeLax)
	if err != nil {
		report.Failed++
		l.Status = lead.StatusFailed
		r.event(l, "craft", fmt.Sprintf("render failed: %v", err))
		return
	}
	if r.polisher != nil {
		if polished, err := r.polisher.Polish(ctx, msg); err == nil {
			msg = polished
		} else {
			log.Printf("pipeline: copywriter polish skipped: %v", err)
		}
	}
	l.Status = lead.StatusCrafted

	// Comply
	verdict, err := r.validator.ValidateCampaign(ctx, l, compliance.Message{
		Subject:     msg.Subject,
		Body:        msg.Body,
		FromAddress: r.fromEmail,
		Channel:     "email",
	})
	if err != nil {
		report.Failed++
		l.Status = lead.StatusFailed
		r.event(l, "comply", fmt.Sprintf("validation error: %v", err))
		return
	}
	if !verdict.Passed() {
		report.Suppressed++
		l.Status = lead.StatusSuppressed
		r.event(l, "comply", fmt.Sprintf("suppressed: %d violations", len(verdict.Violations)))
		r.recordDelivery(l, action, false, -0.3)
		r.rlEngine.Update(state, action, -0.3, "")
		return
	}

	// Deliver
	if r.deliverer == nil {
		l.Status = lead.StatusQueued
		r.event(l, "deliver", "no delivery channel configured, left queued")
		return
	}
	if _, err := r.deliverer.QueueLead(ctx, l, msg.Subject, msg.Body); err != nil {
		report.Failed++
		l.Status = lead.StatusFailed
		log.Printf("pipeline: queue failed for %s: %v", logger.RedactEmail(l.Email), err)
		r.event(l, "deliver", fmt.Sprintf("queue failed: %v", err))
		r.recordDelivery(l, action, false, -0.5)
		r.rlEngine.Update(state, action, -0.5, "")
		return
	}
	report.Delivered++
	l.Status = lead.StatusDelivered
	reward := deliveryReward(l.Tier)
	r.event(l, "deliver", fmt.Sprintf("queued strategy=%s reward=%.1f", action, reward))
	r.recordDelivery(l, action, true, reward)
	r.rlEngine.Update(state, action, reward, "")

	// Sync CRM
	if r.syncer != nil {
		contactID, err := r.syncer.UpsertContact(ctx, l)
		if err != nil {
			log.Printf("pipeline: CRM sync failed for %s: %v", logger.RedactEmail(l.Email), err)
		} else {
			l.Status = lead.StatusSynced
			note := fmt.Sprintf("leadflow sent %s (%s tier, score %.0f)", action, l.Tier, l.ICPScore)
			if err := r.syncer.AddNote(ctx, contactID, note); err != nil {
				log.Printf("pipeline: CRM note failed for %s: %v", l.ID, err)
			}
		}
	}
}

// newsExtras fetches a recent post from the lead company's feed to seed
// the opener. Best effort; feed failures just mean no hook.
func (r *Runner) newsExtras(ctx context.Context, l *lead.Lead) map[string]interface{} {
	if r.news == nil || l.Domain == "" {
		return nil
	}
	hook, err := r.news.Fetch(ctx, "https://"+l.Domain+"/feed")
	if err != nil || hook == nil {
		return nil
	}
	return map[string]interface{}{
		"news_title": hook.Title,
		"news_link":  hook.Link,
	}
}

func (r *Runner) recordDelivery(l *lead.Lead, action rl.Action, success bool, reward float64) {
	r.annealer.Record(annealing.Outcome{
		Stage:   "deliver",
		Tier:    string(l.Tier),
		Action:  string(action),
		Success: success,
		Reward:  reward,
	})
}

// deliveryReward maps the lead tier to the immediate reward for a
// successful queue. Replies arrive later and are folded in by the
// worker's engagement sweep.
func deliveryReward(tier lead.Tier) float64 {
	switch tier {
	case lead.TierHot:
		return 1.0
	case lead.TierWarm:
		return 0.6
	case lead.TierNurture:
		return 0.3
	default:
		return 0
	}
}

// applyRefinements pulls refinements from the annealing engine and
// applies the ones with a direct lever.
func (r *Runner) applyRefinements() {
	for _, ref := range r.annealer.Refine() {
		switch ref.Kind {
		case annealing.RefineAdjustWeight:
			r.segmentor.AdjustWeight(ref.Target, ref.Delta)
			log.Printf("pipeline: adjusted scoring weight %s by %+.1f (%s)", ref.Target, ref.Delta, ref.Reason)
		case annealing.RefineDemoteProvider:
			r.waterfall.Demote(ref.Target)
			log.Printf("pipeline: demoted provider %s (%s)", ref.Target, ref.Reason)
		case annealing.RefineEngageSafeMode:
			r.safe.Engage(ref.Reason)
			log.Printf("pipeline: safe mode engaged (%s)", ref.Reason)
		case annealing.RefineSwitchStrategy:
			// No direct lever: the Q-table already punishes the arm
			// through negative rewards. Logged for the operator.
			log.Printf("pipeline: strategy %s flagged for review (%s)", ref.Target, ref.Reason)
		}
	}
}

// finish persists learning state and archives the run.
func (r *Runner) finish(ctx context.Context, report *Report, leads []*lead.Lead) {
	if err := r.rlEngine.Save(); err != nil {
		log.Printf("pipeline: saving Q-table failed: %v", err)
	}
	if err := r.annealer.Save(); err != nil {
		log.Printf("pipeline: saving outcome log failed: %v", err)
	}
	for _, l := range leads {
		if r.threads != nil {
			if err := r.threads.Persist(l.ID.String()); err != nil {
				log.Printf("pipeline: persisting thread for %s failed: %v", l.ID, err)
			}
		}
		if r.leadSink != nil {
			if err := r.leadSink.Upsert(ctx, l); err != nil {
				log.Printf("pipeline: persisting lead %s failed: %v", l.ID, err)
			}
		}
	}

	if r.archiver != nil {
		record := storage.RunRecord{
			RunID:       report.RunID,
			StartedAt:   report.StartedAt,
			FinishedAt:  time.Now().UTC(),
			LeadsIn:     report.LeadsIn,
			Enriched:    report.Enriched,
			Delivered:   report.Delivered,
			Suppressed:  report.Suppressed,
			Failed:      report.Failed,
			SafeModeHit: report.Halted,
		}
		if err := r.archiver.SaveRunRecord(ctx, record); err != nil {
			log.Printf("pipeline: archiving run record failed: %v", err)
		}
		if len(leads) > 0 {
			if err := r.archiver.SaveLeadBatch(ctx, report.RunID, leads); err != nil {
				log.Printf("pipeline: archiving lead batch failed: %v", err)
			}
		}
	}

	log.Printf("pipeline: run %s done in=%d enriched=%d delivered=%d suppressed=%d failed=%d halted=%v",
		report.RunID, report.LeadsIn, report.Enriched, report.Delivered,
		report.Suppressed, report.Failed, report.Halted)
}

// halted checks the kill switch between stages.
func (r *Runner) halted(report *Report, afterStage string) bool {
	if !r.safe.Halted() {
		return false
	}
	status := r.safe.Status()
	report.Halted = true
	report.HaltReason = status.Reason
	log.Printf("pipeline: halted after %s stage: %s", afterStage, status.Reason)
	return true
}

func (r *Runner) timing(report *Report, stage string, start time.Time) {
	report.Timings = append(report.Timings, StageTiming{
		Stage:    stage,
		Duration: time.Since(start),
	})
}

func (r *Runner) event(l *lead.Lead, stage, message string) {
	if r.threads == nil {
		return
	}
	r.threads.Append(l.ID.String(), contextmgr.Event{
		Stage:   stage,
		Type:    "pipeline",
		Message: message,
	})
}
