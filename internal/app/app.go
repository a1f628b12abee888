// Package app wires configuration into a running pipeline and its
// collaborators. The API server and the worker build the same App so
// their wiring cannot drift apart.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/leadflow/internal/aidefence"
	"github.com/ignite/leadflow/internal/annealing"
	"github.com/ignite/leadflow/internal/compliance"
	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/contextmgr"
	"github.com/ignite/leadflow/internal/crafter"
	"github.com/ignite/leadflow/internal/delivery"
	"github.com/ignite/leadflow/internal/enrichment"
	"github.com/ignite/leadflow/internal/enrichment/apollo"
	"github.com/ignite/leadflow/internal/enrichment/bettercontact"
	"github.com/ignite/leadflow/internal/enrichment/clay"
	"github.com/ignite/leadflow/internal/ghl"
	"github.com/ignite/leadflow/internal/instantly"
	"github.com/ignite/leadflow/internal/pipeline"
	"github.com/ignite/leadflow/internal/ratelimit"
	"github.com/ignite/leadflow/internal/repository/postgres"
	"github.com/ignite/leadflow/internal/rl"
	"github.com/ignite/leadflow/internal/safety"
	"github.com/ignite/leadflow/internal/sandbox"
	"github.com/ignite/leadflow/internal/scraper"
	"github.com/ignite/leadflow/internal/segmentor"
	"github.com/ignite/leadflow/internal/storage"
	"github.com/ignite/leadflow/internal/warehouse"
)

// App holds the built pipeline and the shared infrastructure handles the
// entrypoints need (locks, exports, shutdown).
type App struct {
	Config    *config.Config
	Runner    *pipeline.Runner
	RL        *rl.Engine
	Annealer  *annealing.Engine
	Segmentor *segmentor.Segmentor
	Safety    *safety.Mode
	Store     *storage.Storage

	// Optional infrastructure; nil when not configured or unreachable.
	Redis     *redis.Client
	DB        *sql.DB
	LeadRepo  *postgres.LeadRepo
	Warehouse *warehouse.Client
	Sandbox   *sandbox.Manager
}

// Build constructs the full pipeline from config. Optional collaborators
// degrade to nil with a logged warning; only core components (storage,
// learning state) fail the build.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.Pipeline.Sandbox {
		a.Sandbox = sandbox.New()
		a.Sandbox.Apply(cfg)
		log.Println("app: sandbox mode, all providers mocked in process")
	}

	a.Safety = safety.NewMode(cfg.Safety.KillSwitchPath)

	var err error
	a.Store, err = storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	a.RL, err = rl.NewEngine(cfg.RL)
	if err != nil {
		return nil, fmt.Errorf("initializing RL engine: %w", err)
	}
	a.Annealer, err = annealing.NewEngine(cfg.Annealing)
	if err != nil {
		return nil, fmt.Errorf("initializing annealing engine: %w", err)
	}
	a.Segmentor = segmentor.New(cfg.Scoring)

	a.Redis = connectRedis(ctx, cfg.Redis)
	var limiter *ratelimit.Limiter
	if a.Redis != nil {
		limiter = ratelimit.NewLimiter(a.Redis)
	}

	var gate enrichment.RateGate
	if limiter != nil {
		gate = limiter
	}
	var providers []enrichment.Provider
	if cfg.Apollo.Enabled {
		providers = append(providers, apollo.NewClient(cfg.Apollo))
	}
	if cfg.BetterContact.Enabled {
		providers = append(providers, bettercontact.NewClient(cfg.BetterContact))
	}
	if cfg.Clay.Enabled {
		providers = append(providers, clay.NewClient(cfg.Clay))
	}
	waterfall := enrichment.NewWaterfall(gate, providers...)
	log.Printf("app: enrichment waterfall order %v", waterfall.Order())

	craft := crafter.New()
	craft.RegisterDefaults(crafter.Footer(cfg.Compliance.PhysicalAddress, cfg.Compliance.UnsubscribeURL))
	if n, err := craft.LoadDir(cfg.Crafter.TemplateDir); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	} else if n > 0 {
		log.Printf("app: loaded %d templates from %s", n, cfg.Crafter.TemplateDir)
	}

	var news *crafter.NewsFetcher
	if cfg.Crafter.NewsHookEnabled {
		news = crafter.NewNewsFetcher(0)
	}

	var polisher pipeline.Polisher
	if cfg.Crafter.BedrockEnabled {
		cw, err := crafter.NewCopywriter(ctx, cfg.Crafter.BedrockRegion, cfg.Crafter.BedrockModelID)
		if err != nil {
			log.Printf("app: Bedrock copywriter unavailable: %v", err)
		} else {
			polisher = cw
		}
	}

	var deliverer pipeline.Deliverer
	switch {
	case cfg.Instantly.Enabled:
		deliverer = instantly.NewClient(cfg.Instantly)
		log.Printf("app: delivering via Instantly campaign %s", cfg.Instantly.CampaignID)
	case cfg.SES.Enabled:
		sender, err := delivery.NewSender(ctx, cfg.SES)
		if err != nil {
			log.Printf("app: SES sender unavailable: %v", err)
		} else {
			deliverer = sender
			log.Printf("app: delivering via SES from %s", cfg.SES.FromEmail)
		}
	default:
		log.Println("app: no delivery channel configured, leads stop at queued")
	}

	var syncer pipeline.Syncer
	if cfg.GHL.Enabled {
		syncer = ghl.NewClient(ctx, cfg.GHL)
	}

	if cfg.Database.Enabled && cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Printf("app: opening lead database failed: %v", err)
		} else {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(3)
			db.SetConnMaxLifetime(5 * time.Minute)
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := db.PingContext(pingCtx); err != nil {
				log.Printf("app: lead database unreachable (keeping handle): %v", err)
			}
			cancel()
			a.DB = db
			a.LeadRepo = postgres.NewLeadRepo(db)
		}
	}

	var sources []scraper.Source
	if cfg.Scraper.CSVPath != "" {
		sources = append(sources, scraper.NewCSVSource(cfg.Scraper.CSVPath))
	}
	if cfg.Scraper.LinkedInEnabled {
		sources = append(sources, scraper.NewLinkedInSource())
	}
	if cfg.Pipeline.Sandbox && len(sources) == 0 {
		sources = append(sources, scraper.NewStaticSource(sandbox.SampleLeads()))
	}

	if cfg.Warehouse.Enabled {
		wh, err := warehouse.NewClient(cfg.Warehouse)
		if err != nil {
			log.Printf("app: warehouse unavailable: %v", err)
		} else {
			a.Warehouse = wh
		}
	}

	var sink pipeline.LeadSink
	if a.LeadRepo != nil {
		sink = a.LeadRepo
	}

	a.Runner = pipeline.NewRunner(cfg.Pipeline, pipeline.Deps{
		FromEmail: cfg.SES.FromEmail,
		Sources:   sources,
		Waterfall: waterfall,
		Segmentor: a.Segmentor,
		RL:        a.RL,
		Annealer:  a.Annealer,
		Crafter:   craft,
		News:      news,
		Validator: compliance.NewValidator(cfg.Compliance, limiter),
		Detector:  aidefence.NewDetector(0, 0),
		Safety:    a.Safety,
		Threads:   contextmgr.NewManager(filepath.Join(cfg.Storage.LocalPath, "threads"), 0),
		Deliverer: deliverer,
		Syncer:    syncer,
		Polisher:  polisher,
		Archiver:  a.Store,
		Leads:     sink,
	})
	return a, nil
}

// connectRedis dials Redis and verifies it responds. Returns nil when
// unreachable; callers fall back to lock-free, unthrottled operation.
func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("app: Redis unreachable at %s: %v", cfg.Addr, err)
		client.Close()
		return nil
	}
	log.Printf("app: Redis connected at %s", cfg.Addr)
	return client
}

// Close releases infrastructure handles.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Warehouse != nil {
		a.Warehouse.Close()
	}
	if a.Sandbox != nil {
		a.Sandbox.Close()
	}
}
