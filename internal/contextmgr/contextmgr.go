// Package contextmgr tracks per-run event threads with a token budget.
// Events append to a thread as JSON; when the estimated token count
// exceeds the budget the oldest events are trimmed, keeping recent
// pipeline history available for prompts and debugging.
package contextmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one entry in a thread.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Stage     string                 `json:"stage"`
	Type      string                 `json:"type"` // "info", "decision", "error", "outcome"
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Thread is an append-only event log for one pipeline run or lead.
type Thread struct {
	ID      string  `json:"id"`
	Events  []Event `json:"events"`
	Trimmed int     `json:"trimmed"` // events dropped by budget enforcement
}

// Manager owns threads and enforces the token budget.
type Manager struct {
	mu          sync.Mutex
	threads     map[string]*Thread
	tokenBudget int
	dir         string // persistence directory; empty disables persistence
}

// DefaultTokenBudget bounds a thread to roughly 8k tokens.
const DefaultTokenBudget = 8000

// NewManager creates a context manager. dir may be empty for in-memory
// only operation (tests, sandbox).
func NewManager(dir string, tokenBudget int) *Manager {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &Manager{
		threads:     make(map[string]*Thread),
		tokenBudget: tokenBudget,
		dir:         dir,
	}
}

// EstimateTokens approximates the token count of a string. The chars/4
// heuristic tracks GPT-family tokenizers closely enough for budgeting.
func EstimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return n
}

// Append adds an event to the named thread, creating it if needed, and
// trims oldest events when the thread exceeds the token budget.
func (m *Manager) Append(threadID string, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threads[threadID]
	if !ok {
		t = &Thread{ID: threadID}
		m.threads[threadID] = t
	}
	t.Events = append(t.Events, ev)
	m.enforceBudget(t)
}

// enforceBudget drops oldest events until the thread fits the budget.
// At least one event is always kept.
func (m *Manager) enforceBudget(t *Thread) {
	for len(t.Events) > 1 && m.threadTokens(t) > m.tokenBudget {
		t.Events = t.Events[1:]
		t.Trimmed++
	}
}

func (m *Manager) threadTokens(t *Thread) int {
	total := 0
	for _, ev := range t.Events {
		total += EstimateTokens(ev.Message)
		for k, v := range ev.Fields {
			total += EstimateTokens(k) + EstimateTokens(fmt.Sprintf("%v", v))
		}
		// fixed overhead per event for timestamps and structure
		total += 12
	}
	return total
}

// Thread returns a copy of the named thread, or nil if absent.
func (m *Manager) Thread(threadID string) *Thread {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threads[threadID]
	if !ok {
		return nil
	}
	cp := *t
	cp.Events = append([]Event(nil), t.Events...)
	return &cp
}

// Tokens returns the current estimated token usage of a thread.
func (m *Manager) Tokens(threadID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[threadID]
	if !ok {
		return 0
	}
	return m.threadTokens(t)
}

// Persist writes the named thread to disk as JSON.
func (m *Manager) Persist(threadID string) error {
	if m.dir == "" {
		return nil
	}
	t := m.Thread(threadID)
	if t == nil {
		return fmt.Errorf("thread %s not found", threadID)
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("create thread dir: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal thread: %w", err)
	}
	path := filepath.Join(m.dir, fmt.Sprintf("thread_%s.json", threadID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write thread: %w", err)
	}
	return nil
}

// LoadThread reads a persisted thread back into the manager.
func (m *Manager) LoadThread(threadID string) error {
	if m.dir == "" {
		return fmt.Errorf("no persistence directory configured")
	}
	path := filepath.Join(m.dir, fmt.Sprintf("thread_%s.json", threadID))
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var t Thread
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("unmarshal thread: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[threadID] = &t
	return nil
}
