// Package rl implements the tabular Q-learning engine that picks outreach
// strategies per lead segment. States are small discrete keys built from
// lead attributes; actions are campaign strategy arms. The Q-table lives
// in memory and persists to JSON so learning survives restarts.
package rl

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
)

// Action is one campaign strategy arm.
type Action string

const (
	ActionDirectAsk   Action = "direct_ask"
	ActionValueFirst  Action = "value_first"
	ActionSocialProof Action = "social_proof"
	ActionNurtureDrip Action = "nurture_drip"
	ActionCaseStudy   Action = "case_study"
)

// DefaultActions is the action set offered for every state.
func DefaultActions() []Action {
	return []Action{
		ActionDirectAsk,
		ActionValueFirst,
		ActionSocialProof,
		ActionNurtureDrip,
		ActionCaseStudy,
	}
}

// State is a discrete state key. Five dimensions joined with '|':
// tier, industry bucket, company-size band, enrichment quality bucket,
// engagement bucket.
type State string

// StateFor builds the state key for a lead. engagement buckets prior
// response behavior for the segment ("none", "opened", "replied").
func StateFor(l *lead.Lead, engagement string) State {
	industry := strings.ToLower(strings.TrimSpace(l.Industry))
	if industry == "" {
		industry = "unknown"
	}
	if engagement == "" {
		engagement = "none"
	}
	return State(fmt.Sprintf("%s|%s|%s|%s|%s",
		l.Tier, industry, l.CompanySizeBand(), l.QualityBucket(), engagement))
}

// qTable is the persisted shape of the engine's learned values.
type qTable struct {
	Values      map[State]map[Action]float64 `json:"values"`
	Counts      map[State]map[Action]int     `json:"counts"`
	Epsilon     float64                      `json:"epsilon"`
	UpdateCount int                          `json:"update_count"`
	SavedAt     time.Time                    `json:"saved_at"`
}

// Stats is a read-only snapshot of engine internals for the API.
type Stats struct {
	States      int     `json:"states"`
	Epsilon     float64 `json:"epsilon"`
	UpdateCount int     `json:"update_count"`
}

// Engine is a tabular Q-learning engine with epsilon-greedy exploration.
type Engine struct {
	mu      sync.Mutex
	table   qTable
	actions []Action

	alpha        float64
	gamma        float64
	epsilonMin   float64
	epsilonDecay float64
	statePath    string

	rng *rand.Rand
}

// NewEngine creates an engine from config. If a Q-table exists at the
// configured state path it is loaded; otherwise the engine starts cold.
func NewEngine(cfg config.RLConfig) (*Engine, error) {
	e := &Engine{
		table: qTable{
			Values:  make(map[State]map[Action]float64),
			Counts:  make(map[State]map[Action]int),
			Epsilon: cfg.Epsilon,
		},
		actions:      DefaultActions(),
		alpha:        cfg.Alpha,
		gamma:        cfg.Gamma,
		epsilonMin:   cfg.EpsilonMin,
		epsilonDecay: cfg.EpsilonDecay,
		statePath:    cfg.StatePath,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if cfg.StatePath != "" {
		if err := e.load(); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load q-table: %w", err)
		}
	}
	return e, nil
}

// SetSeed fixes the RNG seed (tests).
func (e *Engine) SetSeed(seed int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng = rand.New(rand.NewSource(seed))
}

// SelectAction picks an action for the state: with probability epsilon a
// uniformly random arm (exploration), otherwise the arm with the highest
// Q-value (exploitation, ties broken by action order).
func (e *Engine) SelectAction(s State) (Action, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rng.Float64() < e.table.Epsilon {
		return e.actions[e.rng.Intn(len(e.actions))], true
	}
	return e.bestAction(s), false
}

// bestAction returns the highest-valued action for the state. Unseen
// actions default to 0, so a cold state returns the first action.
func (e *Engine) bestAction(s State) Action {
	best := e.actions[0]
	bestQ := e.qValue(s, best)
	for _, a := range e.actions[1:] {
		if q := e.qValue(s, a); q > bestQ {
			best, bestQ = a, q
		}
	}
	return best
}

func (e *Engine) qValue(s State, a Action) float64 {
	if row, ok := e.table.Values[s]; ok {
		return row[a]
	}
	return 0
}

// Update applies the Q-learning update for a transition:
//
//	Q(s,a) ← Q(s,a) + α [ r + γ max_a' Q(s',a') − Q(s,a) ]
//
// nextState may be empty for terminal transitions (no bootstrap term).
// Epsilon decays multiplicatively after every update, floored at the
// configured minimum.
func (e *Engine) Update(s State, a Action, reward float64, nextState State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.table.Values[s] == nil {
		e.table.Values[s] = make(map[Action]float64)
	}
	if e.table.Counts[s] == nil {
		e.table.Counts[s] = make(map[Action]int)
	}

	target := reward
	if nextState != "" {
		target += e.gamma * e.qValue(nextState, e.bestAction(nextState))
	}

	current := e.table.Values[s][a]
	e.table.Values[s][a] = current + e.alpha*(target-current)
	e.table.Counts[s][a]++
	e.table.UpdateCount++

	e.table.Epsilon *= e.epsilonDecay
	if e.table.Epsilon < e.epsilonMin {
		e.table.Epsilon = e.epsilonMin
	}
}

// Q returns the current value of a state/action pair.
func (e *Engine) Q(s State, a Action) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.qValue(s, a)
}

// Stats returns a snapshot of engine internals.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		States:      len(e.table.Values),
		Epsilon:     e.table.Epsilon,
		UpdateCount: e.table.UpdateCount,
	}
}

// Snapshot returns the serialized Q-table (for storage backends).
func (e *Engine) Snapshot() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.table.SavedAt = time.Now().UTC()
	return json.MarshalIndent(e.table, "", "  ")
}

// Save persists the Q-table to the configured state path atomically
// (write to temp file, then rename).
func (e *Engine) Save() error {
	if e.statePath == "" {
		return nil
	}
	data, err := e.Snapshot()
	if err != nil {
		return fmt.Errorf("marshal q-table: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(e.statePath), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := e.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write q-table: %w", err)
	}
	if err := os.Rename(tmp, e.statePath); err != nil {
		return fmt.Errorf("rename q-table: %w", err)
	}
	return nil
}

func (e *Engine) load() error {
	data, err := os.ReadFile(e.statePath)
	if err != nil {
		return err
	}
	var t qTable
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("unmarshal q-table: %w", err)
	}
	if t.Values == nil {
		t.Values = make(map[State]map[Action]float64)
	}
	if t.Counts == nil {
		t.Counts = make(map[State]map[Action]int)
	}
	// Preserve the configured starting epsilon only for a cold table
	if t.Epsilon == 0 {
		t.Epsilon = e.table.Epsilon
	}
	e.table = t
	return nil
}
