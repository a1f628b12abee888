// Package annealing closes the pipeline's feedback loop. Stage outcomes
// are logged, recurring outcome combinations are surfaced as patterns via
// frequency analysis over a sliding window, and patterns map to concrete
// refinements: scoring weight adjustments, waterfall demotions, strategy
// switches, or engaging safe mode when failures sustain.
package annealing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ignite/leadflow/internal/config"
)

// Outcome records the result of one pipeline decision.
type Outcome struct {
	Timestamp time.Time         `json:"timestamp"`
	Stage     string            `json:"stage"`   // "enrich", "deliver", ...
	Tier      string            `json:"tier"`    // lead tier at decision time
	Action    string            `json:"action"`  // strategy arm or provider name
	Success   bool              `json:"success"`
	Reward    float64           `json:"reward"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// key is the dimension combination patterns aggregate over.
func (o Outcome) key() string {
	result := "failure"
	if o.Success {
		result = "success"
	}
	return fmt.Sprintf("%s/%s/%s/%s", o.Stage, o.Tier, o.Action, result)
}

// Pattern is a recurring outcome combination above the support threshold.
type Pattern struct {
	Stage       string  `json:"stage"`
	Tier        string  `json:"tier"`
	Action      string  `json:"action"`
	Success     bool    `json:"success"`
	Count       int     `json:"count"`
	Share       float64 `json:"share"`        // fraction of windowed outcomes
	FailureRate float64 `json:"failure_rate"` // failures / total for this stage+tier+action
}

// RefinementKind names the lever a refinement pulls.
type RefinementKind string

const (
	RefineAdjustWeight    RefinementKind = "adjust_scoring_weight"
	RefineDemoteProvider  RefinementKind = "demote_provider"
	RefineSwitchStrategy  RefinementKind = "switch_strategy"
	RefineEngageSafeMode  RefinementKind = "engage_safe_mode"
)

// Refinement is a concrete, appliable suggestion derived from a pattern.
type Refinement struct {
	Kind      RefinementKind `json:"kind"`
	Target    string         `json:"target"`    // criterion, provider, or action name
	Delta     float64        `json:"delta"`     // weight delta where applicable
	Reason    string         `json:"reason"`
	Pattern   Pattern        `json:"pattern"`
	CreatedAt time.Time      `json:"created_at"`
}

// Engine is the self-annealing engine.
type Engine struct {
	mu       sync.Mutex
	cfg      config.AnnealingConfig
	outcomes []Outcome // sliding window, newest last
}

// NewEngine creates an annealing engine, loading any persisted outcome log.
func NewEngine(cfg config.AnnealingConfig) (*Engine, error) {
	e := &Engine{cfg: cfg}
	if cfg.OutcomeLogPath != "" {
		if err := e.load(); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load outcome log: %w", err)
		}
	}
	return e, nil
}

// Record appends an outcome and trims the window.
func (e *Engine) Record(o Outcome) {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.outcomes = append(e.outcomes, o)
	if over := len(e.outcomes) - e.cfg.WindowSize; over > 0 {
		e.outcomes = e.outcomes[over:]
	}
}

// Outcomes returns a copy of the current window.
func (e *Engine) Outcomes() []Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Outcome(nil), e.outcomes...)
}

// DetectPatterns runs frequency analysis over the window and returns
// combinations meeting the minimum support, most frequent first.
func (e *Engine) DetectPatterns() []Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detectLocked()
}

func (e *Engine) detectLocked() []Pattern {
	if len(e.outcomes) == 0 {
		return nil
	}

	counts := make(map[string]int)
	// failure rate denominators per stage/tier/action regardless of result
	totals := make(map[string]int)
	failures := make(map[string]int)
	samples := make(map[string]Outcome)

	for _, o := range e.outcomes {
		k := o.key()
		counts[k]++
		samples[k] = o

		group := fmt.Sprintf("%s/%s/%s", o.Stage, o.Tier, o.Action)
		totals[group]++
		if !o.Success {
			failures[group]++
		}
	}

	var patterns []Pattern
	for k, n := range counts {
		if n < e.cfg.MinSupport {
			continue
		}
		o := samples[k]
		group := fmt.Sprintf("%s/%s/%s", o.Stage, o.Tier, o.Action)
		patterns = append(patterns, Pattern{
			Stage:       o.Stage,
			Tier:        o.Tier,
			Action:      o.Action,
			Success:     o.Success,
			Count:       n,
			Share:       float64(n) / float64(len(e.outcomes)),
			FailureRate: float64(failures[group]) / float64(totals[group]),
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].key() < patterns[j].key()
	})
	return patterns
}

// key gives patterns a stable sort tiebreaker.
func (p Pattern) key() string {
	return fmt.Sprintf("%s/%s/%s/%v", p.Stage, p.Tier, p.Action, p.Success)
}

// Refine turns detected patterns into refinements. Also checks the
// sustained-failure guard: when the windowed failure rate crosses the
// trip threshold with enough data, an engage-safe-mode refinement is
// emitted first.
func (e *Engine) Refine() []Refinement {
	e.mu.Lock()
	patterns := e.detectLocked()
	failRate, n := e.windowFailureRateLocked()
	cfg := e.cfg
	e.mu.Unlock()

	now := time.Now().UTC()
	var out []Refinement

	if n >= cfg.MinOutcomesTrip && failRate >= cfg.FailureRateTrip {
		out = append(out, Refinement{
			Kind:      RefineEngageSafeMode,
			Target:    "pipeline",
			Reason:    fmt.Sprintf("windowed failure rate %.0f%% over %d outcomes", failRate*100, n),
			CreatedAt: now,
		})
	}

	for _, p := range patterns {
		if r, ok := refinementFor(p, now); ok {
			out = append(out, r)
		}
	}
	return out
}

// refinementFor maps one pattern to a lever. Success patterns reinforce
// (positive weight delta); failure patterns demote or switch.
func refinementFor(p Pattern, now time.Time) (Refinement, bool) {
	switch {
	case p.Stage == "enrich" && !p.Success && p.FailureRate >= 0.5:
		return Refinement{
			Kind:      RefineDemoteProvider,
			Target:    p.Action,
			Reason:    fmt.Sprintf("provider %s failing %.0f%% of attempts", p.Action, p.FailureRate*100),
			Pattern:   p,
			CreatedAt: now,
		}, true

	case p.Stage == "deliver" && !p.Success && p.FailureRate >= 0.5:
		return Refinement{
			Kind:      RefineSwitchStrategy,
			Target:    p.Action,
			Reason:    fmt.Sprintf("strategy %s underperforming for %s tier", p.Action, p.Tier),
			Pattern:   p,
			CreatedAt: now,
		}, true

	case p.Stage == "deliver" && p.Success && p.Tier == "hot":
		// Hot-tier wins suggest the ICP weights that produced the tier
		// are well calibrated; nudge intent signals up slightly.
		return Refinement{
			Kind:      RefineAdjustWeight,
			Target:    "intent_signal",
			Delta:     1,
			Reason:    fmt.Sprintf("hot tier converting with %s", p.Action),
			Pattern:   p,
			CreatedAt: now,
		}, true

	case p.Stage == "score" && !p.Success:
		// Disqualified leads that later engaged mean scoring is too strict.
		return Refinement{
			Kind:      RefineAdjustWeight,
			Target:    "title",
			Delta:     -2,
			Reason:    "scored-out leads engaging; relaxing title weight",
			Pattern:   p,
			CreatedAt: now,
		}, true
	}
	return Refinement{}, false
}

func (e *Engine) windowFailureRateLocked() (float64, int) {
	if len(e.outcomes) == 0 {
		return 0, 0
	}
	failures := 0
	for _, o := range e.outcomes {
		if !o.Success {
			failures++
		}
	}
	return float64(failures) / float64(len(e.outcomes)), len(e.outcomes)
}

// Save persists the outcome window to the configured log path.
func (e *Engine) Save() error {
	if e.cfg.OutcomeLogPath == "" {
		return nil
	}

	e.mu.Lock()
	data, err := json.MarshalIndent(e.outcomes, "", "  ")
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(e.cfg.OutcomeLogPath), 0755); err != nil {
		return fmt.Errorf("create outcome dir: %w", err)
	}
	tmp := e.cfg.OutcomeLogPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write outcomes: %w", err)
	}
	return os.Rename(tmp, e.cfg.OutcomeLogPath)
}

func (e *Engine) load() error {
	data, err := os.ReadFile(e.cfg.OutcomeLogPath)
	if err != nil {
		return err
	}
	var outcomes []Outcome
	if err := json.Unmarshal(data, &outcomes); err != nil {
		return fmt.Errorf("unmarshal outcomes: %w", err)
	}
	if over := len(outcomes) - e.cfg.WindowSize; over > 0 {
		outcomes = outcomes[over:]
	}
	e.outcomes = outcomes
	return nil
}
