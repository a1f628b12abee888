// Package warehouse exports outreach outcomes to Snowflake for
// offline analysis. Export is best-effort and never blocks a run.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/ignite/leadflow/internal/annealing"
	"github.com/ignite/leadflow/internal/config"
)

// Client provides access to the Snowflake analytics warehouse
type Client struct {
	config config.WarehouseConfig
	db     *sql.DB
}

// NewClient creates a new Snowflake client
func NewClient(cfg config.WarehouseConfig) (*Client, error) {
	// Format: user:password@account/database/schema?warehouse=xxx
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.User,
		cfg.Password,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
	)

	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{
		config: cfg,
		db:     db,
	}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// ExportOutcomes appends a batch of outreach outcomes to the
// OUTREACH_OUTCOMES table.
func (c *Client) ExportOutcomes(ctx context.Context, runID string, outcomes []annealing.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO OUTREACH_OUTCOMES
			(RUN_ID, STAGE, TIER, ACTION, SUCCESS, REWARD, RECORDED_AT)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare export: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx, runID, o.Stage, o.Tier, o.Action,
			o.Success, o.Reward, o.Timestamp.UTC()); err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}

// OutcomeCountSince returns how many outcomes have been exported since
// the given time, for export health checks.
func (c *Client) OutcomeCountSince(ctx context.Context, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM OUTREACH_OUTCOMES WHERE RECORDED_AT >= ?`

	var count int64
	err := c.db.QueryRowContext(ctx, query, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count outcomes: %w", err)
	}

	return count, nil
}
