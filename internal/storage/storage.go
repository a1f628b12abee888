// Package storage archives pipeline artifacts: run reports, lead batch
// snapshots, and learning state backups. Local JSON files for
// development, S3 and DynamoDB in production.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
)

// RunRecord is the archived summary of one pipeline run.
type RunRecord struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	LeadsIn     int       `json:"leads_in"`
	Enriched    int       `json:"enriched"`
	Delivered   int       `json:"delivered"`
	Suppressed  int       `json:"suppressed"`
	Failed      int       `json:"failed"`
	SafeModeHit bool      `json:"safe_mode_hit"`
}

// Storage persists pipeline artifacts.
type Storage struct {
	config config.StorageConfig
	mu     sync.RWMutex

	// AWS storage (optional)
	aws *AWSStorage

	// In-memory cache of recent run records
	runCache []RunRecord
}

// New creates a Storage instance for the configured backend.
func New(cfg config.StorageConfig) (*Storage, error) {
	s := &Storage{
		config:   cfg,
		runCache: make([]RunRecord, 0),
	}

	ctx := context.Background()

	switch cfg.Type {
	case "s3", "dynamodb":
		awsStorage, err := NewAWSStorage(ctx, cfg.DynamoDBTable, cfg.S3Bucket, cfg.AWSRegion, cfg.GetAWSProfile())
		if err != nil {
			return nil, fmt.Errorf("initializing AWS storage: %w", err)
		}
		s.aws = awsStorage

	case "local":
		if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
		if err := s.loadFromDisk(); err != nil {
			fmt.Printf("Warning: could not load existing data: %v\n", err)
		}
	}

	return s, nil
}

// SaveRunRecord archives a pipeline run summary.
func (s *Storage) SaveRunRecord(ctx context.Context, record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runCache = append(s.runCache, record)

	// Keep only the last 500 runs in memory
	if len(s.runCache) > 500 {
		s.runCache = s.runCache[len(s.runCache)-500:]
	}

	switch s.config.Type {
	case "s3":
		if s.aws != nil {
			return s.aws.SaveRunRecordToS3(ctx, record)
		}
	case "dynamodb":
		if s.aws != nil {
			return s.aws.SaveItem(ctx, "RUN", record.RunID, record)
		}
	case "local":
		return s.saveToFile("runs", record.RunID, record)
	}

	return nil
}

// RecentRuns returns the most recent run records, newest last.
func (s *Storage) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.runCache) {
		limit = len(s.runCache)
	}

	start := len(s.runCache) - limit
	result := make([]RunRecord, limit)
	copy(result, s.runCache[start:])
	return result, nil
}

// SaveLeadBatch archives the lead batch that went through a run, for
// replay and audit.
func (s *Storage) SaveLeadBatch(ctx context.Context, runID string, leads []*lead.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.config.Type {
	case "s3":
		if s.aws != nil {
			key := fmt.Sprintf("batches/%s.json", runID)
			return s.aws.SaveToS3Key(ctx, key, leads)
		}
	case "dynamodb":
		if s.aws != nil {
			return s.aws.SaveItem(ctx, "BATCH", runID, leads)
		}
	case "local":
		return s.saveToFile("batches", runID, leads)
	}

	return nil
}

// BackupLearningState copies the Q-table and outcome window files to
// durable storage so a fresh deployment can resume learning.
func (s *Storage) BackupLearningState(ctx context.Context, name string, paths ...string) error {
	state := map[string]json.RawMessage{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("reading %s: %w", path, err)
		}
		state[filepath.Base(path)] = data
	}
	if len(state) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.config.Type {
	case "s3":
		if s.aws != nil {
			key := fmt.Sprintf("learning/%s.json", name)
			return s.aws.SaveToS3Key(ctx, key, state)
		}
	case "dynamodb":
		if s.aws != nil {
			return s.aws.SaveItem(ctx, "LEARNING", name, state)
		}
	case "local":
		return s.saveToFile("learning", name, state)
	}

	return nil
}

// saveToFile saves data to a JSON file
func (s *Storage) saveToFile(category, key string, data interface{}) error {
	dir := filepath.Join(s.config.LocalPath, category)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Sanitize key for filename
	safeKey := filepath.Base(key)
	path := filepath.Join(dir, safeKey+".json")

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// loadFromDisk reloads archived run records into the cache.
func (s *Storage) loadFromDisk() error {
	runsDir := filepath.Join(s.config.LocalPath, "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(runsDir, entry.Name()))
		if err != nil {
			continue
		}
		var record RunRecord
		if err := json.Unmarshal(data, &record); err == nil {
			s.runCache = append(s.runCache, record)
		}
	}
	return nil
}
