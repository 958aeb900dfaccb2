package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sedori-tools/repricer/internal/repricer"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// Run is the stored record of one repricing run.
type Run struct {
	ID             uuid.UUID        `json:"id"`
	Mode           repricer.Mode    `json:"mode"`
	Trigger        string           `json:"trigger"`
	RunDate        time.Time        `json:"run_date"`
	SourceFile     string           `json:"source_file"`
	SourceEncoding string           `json:"source_encoding"`
	OutputEncoding string           `json:"output_encoding,omitempty"`
	Summary        repricer.Summary `json:"summary"`
	ConfigProblems []string         `json:"config_problems,omitempty"`
	UpdatedPath    string           `json:"updated_path,omitempty"`
	ReportPath     string           `json:"report_path,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// RunRepository defines the interface for run history operations
type RunRepository interface {
	// Save stores a run; saving an existing ID replaces it
	Save(ctx context.Context, run *Run) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id uuid.UUID) (*Run, error)

	// List returns runs newest first
	List(ctx context.Context, limit, offset int) ([]*Run, error)
}

// MemoryRunRepository keeps run history in process memory.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]Run
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[uuid.UUID]Run)}
}

func (r *MemoryRunRepository) Save(ctx context.Context, run *Run) error {
	if run == nil || run.ID == uuid.Nil {
		return errors.New("run id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *run
	stored.ConfigProblems = append([]string(nil), run.ConfigProblems...)
	r.runs[run.ID] = stored
	return nil
}

func (r *MemoryRunRepository) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

func (r *MemoryRunRepository) List(ctx context.Context, limit, offset int) ([]*Run, error) {
	r.mu.RLock()
	all := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		run := run
		all = append(all, &run)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []*Run{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
