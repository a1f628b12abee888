package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/leadflow/internal/app"
	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/pkg/distlock"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	log.Println("Starting LeadFlow worker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer a.Close()

	// Only one worker runs a batch at a time. Redis is preferred; the
	// lead database's advisory locks are the fallback. With neither the
	// worker assumes it is the only instance.
	var lock distlock.DistLock
	if a.Redis != nil || a.DB != nil {
		lock = distlock.NewLock(a.Redis, a.DB, "leadflow:pipeline", 10*time.Minute)
	} else {
		log.Println("No Redis or database available, running without a distributed lock")
	}

	interval := cfg.Pipeline.TickInterval()
	log.Printf("Worker ticking every %s (batch size %d)", interval, cfg.Pipeline.BatchSize)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runBatch(ctx, a, lock, cfg)
	for {
		select {
		case <-done:
			log.Println("Shutting down worker...")
			cancel()
			if err := a.RL.Save(); err != nil {
				log.Printf("Saving Q-table on shutdown failed: %v", err)
			}
			if err := a.Annealer.Save(); err != nil {
				log.Printf("Saving outcome log on shutdown failed: %v", err)
			}
			log.Println("Worker stopped")
			return
		case <-ticker.C:
			runBatch(ctx, a, lock, cfg)
		}
	}
}

// runBatch runs one pipeline batch under the distributed lock, then
// exports outcomes to the warehouse and backs up learning state.
func runBatch(ctx context.Context, a *app.App, lock distlock.DistLock, cfg *config.Config) {
	if a.Safety.Halted() {
		status := a.Safety.Status()
		log.Printf("Worker skipping tick, safe mode engaged: %s", status.Reason)
		return
	}

	if lock != nil {
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			log.Printf("Lock acquire failed: %v", err)
			return
		}
		if !acquired {
			log.Println("Another worker holds the pipeline lock, skipping tick")
			return
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				log.Printf("Lock release failed: %v", err)
			}
		}()
	}

	report, err := a.Runner.Run(ctx)
	if err != nil {
		log.Printf("Pipeline run failed: %v", err)
		return
	}

	if a.Warehouse != nil {
		if err := a.Warehouse.ExportOutcomes(ctx, report.RunID, a.Annealer.Outcomes()); err != nil {
			log.Printf("Warehouse export failed: %v", err)
		}
	}

	if err := a.Store.BackupLearningState(ctx, "learning",
		cfg.RL.StatePath, cfg.Annealing.OutcomeLogPath); err != nil {
		log.Printf("Learning state backup failed: %v", err)
	}
}
