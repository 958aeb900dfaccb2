package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/audit"
	"github.com/sedori-tools/repricer/internal/log"
	"github.com/sedori-tools/repricer/internal/metrics"
	"github.com/sedori-tools/repricer/internal/repricer"
	"github.com/sedori-tools/repricer/internal/service"
)

// ErrInboxEmpty is returned by RunOnce when there is nothing to process
var ErrInboxEmpty = errors.New("inbox has no listing files")

// failedDir is the archive subdirectory for inputs whose run failed
const failedDir = "failed"

var inboxExtensions = map[string]bool{".csv": true, ".xlsx": true}

// Runner executes one repricing run
type Runner interface {
	Run(ctx context.Context, req service.RunRequest) (*service.RunResponse, error)
}

// Config holds the scheduled job settings
type Config struct {
	// Spec is a standard five-field cron expression.
	Spec       string
	InboxDir   string
	ArchiveDir string
	Location   *time.Location
}

// Scheduler applies the rule table to files dropped into an inbox
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	runner  Runner
	logger  *zap.Logger
	entryID cron.EntryID
	mu      sync.Mutex
	now     func() time.Time
}

// New validates the cron spec and prepares the directories
func New(cfg Config, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("invalid schedule spec %q: %w", cfg.Spec, err)
	}
	for _, dir := range []string{cfg.InboxDir, cfg.ArchiveDir, filepath.Join(cfg.ArchiveDir, failedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(cfg.Location)),
		cfg:    cfg,
		runner: runner,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Start registers the job and starts the cron loop
func (s *Scheduler) Start() error {
	entryID, err := s.cron.AddFunc(s.cfg.Spec, s.runTask)
	if err != nil {
		return fmt.Errorf("failed to add scheduled job: %w", err)
	}
	s.entryID = entryID
	s.cron.Start()

	s.logger.Info("Repricing scheduler started",
		zap.String("schedule", s.cfg.Spec),
		zap.String("inbox", s.cfg.InboxDir),
		zap.Time("next_run", s.NextRun()))
	return nil
}

// Stop stops the cron loop and waits for a running job until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Repricing scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun returns when the job fires next, or the zero time if not started
func (s *Scheduler) NextRun() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) runTask() {
	ctx := audit.WithActor(context.Background(), "scheduler")
	resp, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrInboxEmpty):
		s.logger.Info("Scheduled repricing skipped, inbox is empty", zap.String("inbox", s.cfg.InboxDir))
	case err != nil:
		metrics.RecordError("scheduled_run", "scheduler")
		s.logger.Error("Scheduled repricing failed", zap.Error(err))
	default:
		s.logger.Info("Scheduled repricing completed",
			zap.String("run_id", resp.Run.ID.String()),
			zap.String("source_file", resp.Run.SourceFile),
			zap.Int("updated_rows", resp.Run.Summary.UpdatedRows))
	}
}

// RunOnce applies the rule table to the oldest file in the inbox and
// archives it. Inputs whose run fails go to the failed subdirectory so the
// next tick does not pick them up again.
func (s *Scheduler) RunOnce(ctx context.Context) (*service.RunResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.oldestInput()
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	ctx = log.WithSourceFile(ctx, name)
	lg := log.With(ctx, s.logger)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	resp, runErr := s.runner.Run(ctx, service.RunRequest{
		Data:     data,
		FileName: name,
		Mode:     repricer.ModeApply,
		Trigger:  service.TriggerSchedule,
		RunDate:  s.now().In(s.cfg.Location),
	})

	dest := s.cfg.ArchiveDir
	if runErr != nil {
		dest = filepath.Join(dest, failedDir)
	}
	archived, err := s.archive(path, dest)
	if err != nil {
		lg.Error("Failed to archive inbox file", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	} else {
		lg.Debug("Archived inbox file", zap.String("archived_path", archived))
	}
	if runErr != nil {
		return nil, runErr
	}
	return resp, nil
}

// oldestInput returns the least recently modified listing file in the inbox
func (s *Scheduler) oldestInput() (string, error) {
	entries, err := os.ReadDir(s.cfg.InboxDir)
	if err != nil {
		return "", fmt.Errorf("failed to read inbox: %w", err)
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var files []candidate
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !inboxExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{path: filepath.Join(s.cfg.InboxDir, e.Name()), mod: info.ModTime()})
	}
	if len(files) == 0 {
		return "", ErrInboxEmpty
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].mod.Equal(files[j].mod) {
			return files[i].mod.Before(files[j].mod)
		}
		return files[i].path < files[j].path
	})
	return files[0].path, nil
}

func (s *Scheduler) archive(path, dir string) (string, error) {
	dest := filepath.Join(dir, s.now().In(s.cfg.Location).Format("20060102_150405")+"_"+filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed to move %s to %s: %w", path, dir, err)
	}
	return dest, nil
}
