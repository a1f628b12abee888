package enrichment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/leadflow/internal/lead"
)

// Attempt records one provider call inside a waterfall run.
type Attempt struct {
	Provider string        `json:"provider"`
	Found    bool          `json:"found"`
	Verified bool          `json:"verified"`
	Err      string        `json:"error,omitempty"`
	Latency  time.Duration `json:"latency"`
	// Cost is the list price of the lookup in USD. Rate-limited
	// attempts cost nothing.
	Cost float64 `json:"cost"`
}

// RunReport summarizes a waterfall run for one lead.
type RunReport struct {
	Attempts []Attempt `json:"attempts"`
	// WonBy is the provider that produced the verified email, if any.
	WonBy string `json:"won_by,omitempty"`
}

// TotalCost sums the lookup cost across all attempts.
func (r *RunReport) TotalCost() float64 {
	total := 0.0
	for _, a := range r.Attempts {
		total += a.Cost
	}
	return total
}

// lookupCosts holds published per-lookup prices; unknown providers cost 0.
var lookupCosts = map[string]float64{
	"apollo":        0.015,
	"bettercontact": 0.02,
	"clay":          0.04,
}

// RateGate lets the waterfall respect per-provider rate limits. A nil
// gate allows everything.
type RateGate interface {
	AllowProvider(ctx context.Context, provider string) (bool, error)
}

// Waterfall tries providers in priority order until one returns a
// verified email. Providers can be demoted to the back of the order at
// runtime when the annealing loop flags them as failing.
type Waterfall struct {
	mu        sync.RWMutex
	providers []Provider
	gate      RateGate
}

// NewWaterfall creates a waterfall over providers in the given order.
func NewWaterfall(gate RateGate, providers ...Provider) *Waterfall {
	return &Waterfall{providers: providers, gate: gate}
}

// Order returns the current provider order by name.
func (w *Waterfall) Order() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, len(w.providers))
	for i, p := range w.providers {
		names[i] = p.Name()
	}
	return names
}

// Demote moves the named provider to the back of the order. Unknown
// names are a no-op.
func (w *Waterfall) Demote(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, p := range w.providers {
		if p.Name() == name {
			demoted := w.providers[i]
			w.providers = append(w.providers[:i], w.providers[i+1:]...)
			w.providers = append(w.providers, demoted)
			return
		}
	}
}

// Enrich runs the waterfall for one lead. Every provider's partial
// result is merged into the lead; the run stops at the first verified
// email. Provider errors are recorded in the report and the waterfall
// continues. An error is returned only when no provider produced
// anything at all.
func (w *Waterfall) Enrich(ctx context.Context, l *lead.Lead) (*RunReport, error) {
	w.mu.RLock()
	providers := make([]Provider, len(w.providers))
	copy(providers, w.providers)
	w.mu.RUnlock()

	report := &RunReport{}
	anyFound := false

	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if w.gate != nil {
			allowed, err := w.gate.AllowProvider(ctx, p.Name())
			if err == nil && !allowed {
				report.Attempts = append(report.Attempts, Attempt{
					Provider: p.Name(),
					Err:      "rate limited",
				})
				continue
			}
		}

		start := time.Now()
		result, err := p.Enrich(ctx, l)
		attempt := Attempt{
			Provider: p.Name(),
			Latency:  time.Since(start),
			Cost:     lookupCosts[p.Name()],
		}
		if err != nil {
			attempt.Err = err.Error()
			report.Attempts = append(report.Attempts, attempt)
			continue
		}
		if result.Empty() {
			report.Attempts = append(report.Attempts, attempt)
			continue
		}

		attempt.Found = true
		attempt.Verified = result.EmailVerified
		report.Attempts = append(report.Attempts, attempt)

		result.Apply(l)
		anyFound = true
		l.EnrichedBy = p.Name()

		if result.EmailVerified {
			report.WonBy = p.Name()
			break
		}
	}

	if !anyFound {
		return report, fmt.Errorf("no provider enriched lead %s", l.ID)
	}

	l.Status = lead.StatusEnriched
	l.UpdatedAt = time.Now().UTC()
	return report, nil
}
