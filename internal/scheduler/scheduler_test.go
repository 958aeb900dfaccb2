package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sedori-tools/repricer/internal/repository"
	"github.com/sedori-tools/repricer/internal/repricer"
	"github.com/sedori-tools/repricer/internal/service"
)

type fakeRunner struct {
	mu   sync.Mutex
	reqs []service.RunRequest
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, req service.RunRequest) (*service.RunResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &service.RunResponse{Run: &repository.Run{ID: uuid.New(), SourceFile: req.FileName}}, nil
}

var fixedNow = time.Date(2026, time.October, 12, 9, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T, runner Runner) (*Scheduler, Config) {
	t.Helper()
	root := t.TempDir()
	cfg := Config{
		Spec:       "0 9 * * 1",
		InboxDir:   filepath.Join(root, "inbox"),
		ArchiveDir: filepath.Join(root, "archive"),
		Location:   time.UTC,
	}
	s, err := New(cfg, runner, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s, cfg
}

func drop(t *testing.T, dir, name string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("SKU,price,akaji,priceTrace,days\n"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New(Config{Spec: "every monday", InboxDir: t.TempDir(), ArchiveDir: t.TempDir()}, &fakeRunner{}, nil)
	assert.Error(t, err)
}

func TestRunOnce_EmptyInbox(t *testing.T) {
	runner := &fakeRunner{}
	s, cfg := newScheduler(t, runner)
	drop(t, cfg.InboxDir, "notes.txt", fixedNow)

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrInboxEmpty)
	assert.Empty(t, runner.reqs)
}

func TestRunOnce_PicksOldestAndArchives(t *testing.T) {
	runner := &fakeRunner{}
	s, cfg := newScheduler(t, runner)
	drop(t, cfg.InboxDir, "newer.csv", fixedNow.Add(-time.Hour))
	drop(t, cfg.InboxDir, "older.XLSX", fixedNow.Add(-48*time.Hour))

	resp, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "older.XLSX", resp.Run.SourceFile)

	require.Len(t, runner.reqs, 1)
	req := runner.reqs[0]
	assert.Equal(t, repricer.ModeApply, req.Mode)
	assert.Equal(t, service.TriggerSchedule, req.Trigger)
	assert.True(t, req.RunDate.Equal(fixedNow))

	assert.NoFileExists(t, filepath.Join(cfg.InboxDir, "older.XLSX"))
	assert.FileExists(t, filepath.Join(cfg.ArchiveDir, "20261012_090000_older.XLSX"))
	assert.FileExists(t, filepath.Join(cfg.InboxDir, "newer.csv"))
}

func TestRunOnce_FailedRunGoesToFailedDir(t *testing.T) {
	runner := &fakeRunner{err: &repricer.SchemaError{Reason: "required columns not found in header"}}
	s, cfg := newScheduler(t, runner)
	drop(t, cfg.InboxDir, "broken.csv", fixedNow)

	_, err := s.RunOnce(context.Background())
	var schemaErr *repricer.SchemaError
	require.True(t, errors.As(err, &schemaErr))

	assert.FileExists(t, filepath.Join(cfg.ArchiveDir, failedDir, "20261012_090000_broken.csv"))

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrInboxEmpty)
}

func TestStartStop(t *testing.T) {
	s, _ := newScheduler(t, &fakeRunner{})
	assert.True(t, s.NextRun().IsZero())

	require.NoError(t, s.Start())
	next := s.NextRun()
	assert.False(t, next.IsZero())
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 9, next.Hour())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
