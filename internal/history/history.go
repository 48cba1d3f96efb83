// Package history keeps a SQLite ledger of redub runs and their per-file
// outcomes, shown by "redub history".
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run statuses.
const (
	StatusRunning     = "running"
	StatusOK          = "ok"
	StatusPartial     = "partial"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// ErrNotFound indicates no run matches the requested ID.
var ErrNotFound = errors.New("run not found")

// ErrAmbiguous indicates an ID prefix matching more than one run.
var ErrAmbiguous = errors.New("run ID prefix is ambiguous")

// Run is one invocation of the redub command.
type Run struct {
	ID         string    `gorm:"primaryKey;size:36"`
	StartedAt  time.Time `gorm:"index"`
	FinishedAt *time.Time
	Reference  string
	Model      string
	Mode       string
	Status     string       `gorm:"size:16;index"`
	Files      []FileRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// FileRecord is the outcome of one input file within a run.
type FileRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"size:36;index"`
	Input       string
	Output      string
	Chunks      int
	Irreducible int
	DurationMS  int64
	Warnings    int
	Error       string
}

// Duration returns the input's playing time.
func (f FileRecord) Duration() time.Duration {
	return time.Duration(f.DurationMS) * time.Millisecond
}

// Failed reports whether the file ended in error.
func (f FileRecord) Failed() bool { return f.Error != "" }

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Store is the run ledger.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// DefaultPath returns $XDG_DATA_HOME/redub/history.db, falling back to
// ~/.local/share/redub/history.db.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "redub", "history.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "redub", "history.db"), nil
}

// Open opens (creating if needed) the ledger at path and migrates the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil { // #nosec G301 -- user data dir
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return s.now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.AutoMigrate(&Run{}, &FileRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	s.db = db
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL database: %w", err)
	}
	return sqlDB.Close()
}

// Start records a new run in the running state.
func (s *Store) Start(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now().UTC()
	}
	run.Status = StatusRunning
	if err := s.db.WithContext(ctx).Omit("Files").Create(run).Error; err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Finish stores the per-file outcomes and final status of a run.
func (s *Store) Finish(ctx context.Context, id, status string, files []FileRecord) error {
	finished := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Run{}).Where("id = ?", id).
			Updates(map[string]any{"status": status, "finished_at": finished})
		if res.Error != nil {
			return fmt.Errorf("finish run: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if len(files) == 0 {
			return nil
		}
		for i := range files {
			files[i].ID = 0
			files[i].RunID = id
		}
		if err := tx.Create(&files).Error; err != nil {
			return fmt.Errorf("record files: %w", err)
		}
		return nil
	})
}

// Recent returns up to limit runs, newest first, with their files.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := s.db.WithContext(ctx).Preload("Files").Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Get returns the run whose ID starts with prefix.
func (s *Store) Get(ctx context.Context, prefix string) (*Run, error) {
	if prefix == "" {
		return nil, ErrNotFound
	}
	var runs []Run
	err := s.db.WithContext(ctx).Preload("Files").
		Where("id LIKE ?", prefix+"%").Limit(2).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return &runs[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
}

// Prune deletes runs started before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&Run{}).Where("started_at < ?", cutoff.UTC()).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("run_id IN ?", ids).Delete(&FileRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&Run{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}
