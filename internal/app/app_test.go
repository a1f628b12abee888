package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/leadflow/internal/config"
)

func sandboxConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		SES: config.SESConfig{FromEmail: "sdr@ignite.io"},
		Scoring: config.ScoringConfig{
			TargetIndustries: []string{"SaaS", "Fintech"},
			TargetTitles:     []string{"VP Sales", "Head of Growth", "Director of Sales"},
			IdealSizeMin:     11, IdealSizeMax: 200,
			HotThreshold: 80, WarmThreshold: 60, NurtureThreshold: 40,
		},
		RL: config.RLConfig{
			Alpha: 0.1, Gamma: 0.9, Epsilon: 0.1, EpsilonMin: 0.02,
			EpsilonDecay: 0.995, StatePath: filepath.Join(dir, "qtable.json"),
		},
		Annealing: config.AnnealingConfig{
			OutcomeLogPath: filepath.Join(dir, "outcomes.json"),
			WindowSize:     500, MinSupport: 5, FailureRateTrip: 0.9, MinOutcomesTrip: 100,
		},
		Compliance: config.ComplianceConfig{
			PhysicalAddress: "500 Congress Ave, Austin TX 78701",
			UnsubscribeURL:  "https://ignite.io/u",
		},
		Safety:  config.SafetyConfig{KillSwitchPath: filepath.Join(dir, "KILL_SWITCH")},
		Storage: config.StorageConfig{Type: "local", LocalPath: dir},
		// Closed port so the build falls back to lock-free operation
		// instead of waiting on a live Redis.
		Redis:    config.RedisConfig{Addr: "127.0.0.1:1"},
		Pipeline: config.PipelineConfig{BatchSize: 10, Sandbox: true},
		Crafter:  config.CrafterConfig{TemplateDir: filepath.Join(dir, "no-templates")},
	}
}

func TestBuildSandboxRunsOffline(t *testing.T) {
	cfg := sandboxConfig(t)

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Sandbox, "sandbox manager not created")
	assert.True(t, cfg.Instantly.Enabled, "sandbox did not rewire Instantly config")
	assert.NotEmpty(t, cfg.Instantly.BaseURL)

	report, err := a.Runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.LeadsIn)
	assert.GreaterOrEqual(t, report.Delivered, 3, "report %+v", report)
	assert.EqualValues(t, report.Delivered, a.Sandbox.QueuedCount())
	assert.EqualValues(t, report.Delivered, a.Sandbox.SyncedCount())

	runs, err := a.Store.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1, "run record not archived")
	assert.Equal(t, report.RunID, runs[0].RunID)
}

func TestBuildWithoutProvidersLeavesLeadsQueued(t *testing.T) {
	cfg := sandboxConfig(t)
	cfg.Pipeline.Sandbox = false

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	report, err := a.Runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.LeadsIn, "no sources configured")
	assert.Equal(t, 0, report.Delivered)
}
