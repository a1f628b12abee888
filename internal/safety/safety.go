// Package safety implements the pipeline kill switch. A flag file on disk
// halts all processing; operators (or the annealing guard) can also engage
// safe mode programmatically with a recorded reason.
package safety

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Mode is the safety state checked between pipeline stages.
type Mode struct {
	killSwitchPath string

	mu        sync.RWMutex
	engaged   bool
	reason    string
	engagedAt time.Time
}

// Status is a snapshot of the current safety state.
type Status struct {
	Engaged    bool      `json:"engaged"`
	Reason     string    `json:"reason,omitempty"`
	EngagedAt  time.Time `json:"engaged_at,omitempty"`
	KillSwitch bool      `json:"kill_switch_file"`
}

// NewMode creates a safety mode watcher for the given kill switch path.
func NewMode(killSwitchPath string) *Mode {
	return &Mode{killSwitchPath: killSwitchPath}
}

// Halted reports whether the pipeline must stop. Either the kill switch
// file exists, or safe mode was engaged programmatically.
func (m *Mode) Halted() bool {
	if m.killSwitchFilePresent() {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engaged
}

// Engage puts the pipeline into safe mode with a reason.
func (m *Mode) Engage(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engaged {
		return
	}
	m.engaged = true
	m.reason = reason
	m.engagedAt = time.Now().UTC()
}

// Disengage clears programmatic safe mode. It does NOT remove the kill
// switch file; that requires operator action on disk.
func (m *Mode) Disengage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engaged = false
	m.reason = ""
	m.engagedAt = time.Time{}
}

// TripKillSwitch writes the kill switch file so the halt survives restarts.
func (m *Mode) TripKillSwitch(reason string) error {
	m.Engage(reason)
	content := fmt.Sprintf("engaged_at: %s\nreason: %s\n",
		time.Now().UTC().Format(time.RFC3339), strings.TrimSpace(reason))
	if err := os.WriteFile(m.killSwitchPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write kill switch: %w", err)
	}
	return nil
}

// Status returns the current safety state.
func (m *Mode) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Engaged:    m.engaged,
		Reason:     m.reason,
		EngagedAt:  m.engagedAt,
		KillSwitch: m.killSwitchFilePresent(),
	}
}

func (m *Mode) killSwitchFilePresent() bool {
	if m.killSwitchPath == "" {
		return false
	}
	_, err := os.Stat(m.killSwitchPath)
	return err == nil
}
