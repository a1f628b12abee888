package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/leadflow/internal/annealing"
)

func TestExportOutcomes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	c := &Client{db: db}
	now := time.Now().UTC()
	outcomes := []annealing.Outcome{
		{Timestamp: now, Stage: "deliver", Tier: "hot", Action: "direct_ask", Success: true, Reward: 1},
		{Timestamp: now, Stage: "enrich", Tier: "warm", Action: "apollo", Success: false, Reward: -0.5},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO OUTREACH_OUTCOMES")
	prep.ExpectExec().
		WithArgs("run-1", "deliver", "hot", "direct_ask", true, 1.0, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("run-1", "enrich", "warm", "apollo", false, -0.5, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := c.ExportOutcomes(context.Background(), "run-1", outcomes); err != nil {
		t.Fatalf("ExportOutcomes failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestExportOutcomesEmpty(t *testing.T) {
	c := &Client{}
	if err := c.ExportOutcomes(context.Background(), "run-1", nil); err != nil {
		t.Errorf("Empty export should be a no-op, got %v", err)
	}
}

func TestOutcomeCountSince(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	c := &Client{db: db}
	since := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(since.UTC()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := c.OutcomeCountSince(context.Background(), since)
	if err != nil {
		t.Fatalf("OutcomeCountSince failed: %v", err)
	}
	if count != 42 {
		t.Errorf("Count = %d", count)
	}
}
