package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/audit"
	"github.com/sedori-tools/repricer/internal/codec"
	"github.com/sedori-tools/repricer/internal/events"
	"github.com/sedori-tools/repricer/internal/log"
	"github.com/sedori-tools/repricer/internal/metrics"
	"github.com/sedori-tools/repricer/internal/output"
	"github.com/sedori-tools/repricer/internal/repository"
	"github.com/sedori-tools/repricer/internal/repricer"
	"github.com/sedori-tools/repricer/internal/retry"
	"github.com/sedori-tools/repricer/internal/tracing"
)

// Triggers recorded on runs and metrics
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// Deps are the collaborators of RepricerService. Publisher, Audit and
// Logger may be nil.
type Deps struct {
	Engine    *repricer.Engine
	Rules     repricer.RuleRepository
	Runs      repository.RunRepository
	Writer    *output.Writer
	Publisher events.Publisher
	Audit     *audit.Manager
	Retry     retry.Config
	Logger    *zap.Logger
	// Location decides what "today" is when a run has no explicit date.
	Location *time.Location
}

// RepricerService runs the engine against uploaded listing files and keeps
// the side effects (output files, history, events, audit) in one place.
type RepricerService struct {
	engine    *repricer.Engine
	rules     repricer.RuleRepository
	runs      repository.RunRepository
	writer    *output.Writer
	publisher events.Publisher
	audit     *audit.Manager
	retry     retry.Config
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewRepricerService creates a new repricer service
func NewRepricerService(d Deps) *RepricerService {
	s := &RepricerService{
		engine:    d.Engine,
		rules:     d.Rules,
		runs:      d.Runs,
		writer:    d.Writer,
		publisher: d.Publisher,
		audit:     d.Audit,
		retry:     d.Retry,
		logger:    d.Logger,
		loc:       d.Location,
		now:       time.Now,
	}
	if s.publisher == nil {
		s.publisher = events.NoopPublisher{}
	}
	if s.audit == nil {
		s.audit = audit.NewManager(audit.NewZapAuditLogger(zap.NewNop()))
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.retry.MaxAttempts == 0 {
		s.retry = retry.DefaultConfig()
	}
	return s
}

// RunRequest describes one repricing run
type RunRequest struct {
	Data     []byte
	FileName string
	Mode     repricer.Mode
	Trigger  string
	// RunDate defaults to today in the service location.
	RunDate time.Time
}

// RunResponse is what a run produced
type RunResponse struct {
	Run    *repository.Run  `json:"run"`
	Result *repricer.Result `json:"result"`
	Files  *output.Files    `json:"files,omitempty"`
}

// Run evaluates a listing file. Apply runs write both output files or
// neither; preview runs write nothing.
func (s *RepricerService) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	start := s.now()
	runID := uuid.New()
	ctx = log.WithRunID(ctx, runID.String())
	ctx = log.WithSourceFile(ctx, req.FileName)
	lg := log.With(ctx, s.logger)

	if req.Mode == "" {
		req.Mode = repricer.ModePreview
	}
	runDate := req.RunDate
	if runDate.IsZero() {
		runDate = start.In(s.loc)
	}
	y, m, d := runDate.Date()
	runDate = time.Date(y, m, d, 0, 0, 0, 0, runDate.Location())

	ctx, span := tracing.StartSpan(ctx, "repricer.run")
	defer span.End()
	tracing.SetSpanAttributes(ctx,
		attribute.String("run.id", runID.String()),
		attribute.String("run.mode", string(req.Mode)),
		attribute.String("run.trigger", req.Trigger),
		attribute.String("run.date", runDate.Format("2006-01-02")),
	)

	cfg, problems, err := s.loadRules(ctx)
	if err != nil {
		s.fail(ctx, req, err, start)
		return nil, err
	}

	res, err := s.engine.Run(ctx, req.Data, cfg, runDate, req.Mode)
	if err != nil {
		s.fail(ctx, req, err, start)
		return nil, err
	}
	if problems != nil {
		res.ConfigProblems = problems
	}
	if len(res.ConfigProblems) > 0 {
		metrics.RecordRulesDegraded()
	}

	run := &repository.Run{
		ID:             runID,
		Mode:           req.Mode,
		Trigger:        req.Trigger,
		RunDate:        runDate,
		SourceFile:     req.FileName,
		SourceEncoding: res.SourceEncoding,
		Summary:        res.Summary,
		ConfigProblems: res.ConfigProblems,
		CreatedAt:      start.UTC(),
	}
	resp := &RunResponse{Run: run, Result: res}

	if req.Mode == repricer.ModeApply {
		stamp := start.In(s.loc).Format(output.StampLayout) + "_" + runID.String()[:8]
		files, err := s.writer.Write(stamp, res.Updated.Data, res.Report.Data)
		_ = s.audit.LogRunApplied(ctx, runID.String(), req.FileName, res.Summary.UpdatedRows, files.Updated, err)
		if err != nil {
			s.fail(ctx, req, err, start)
			return nil, fmt.Errorf("failed to write output files: %w", err)
		}
		run.OutputEncoding = res.Updated.Encoding
		run.UpdatedPath, run.ReportPath = files.Updated, files.Report
		resp.Files = &files
	}

	if err := s.runs.Save(ctx, run); err != nil {
		metrics.RecordError("run_history", "repository")
		lg.Error("Failed to record run", zap.Error(err))
	}

	if req.Mode == repricer.ModeApply {
		s.publish(ctx, events.NewRunCompletedEvent(run))
	}

	metrics.RecordRun(req.Mode, req.Trigger, "success", res.Summary, s.now().Sub(start))
	lg.Info("Repricing run completed",
		zap.String("mode", string(req.Mode)),
		zap.String("trigger", req.Trigger),
		zap.Time("run_date", runDate),
		zap.Int("total_rows", res.Summary.TotalRows),
		zap.Int("updated_rows", res.Summary.UpdatedRows),
		zap.Int("excluded_rows", res.Summary.ExcludedRows),
		zap.Int("seasonal_switched_rows", res.Summary.SeasonalSwitchedRows),
		zap.Int("date_unknown_rows", res.Summary.DateUnknownRows),
		zap.Int("failed_rows", res.Summary.FailedRows))

	return resp, nil
}

// loadRules returns the snapshot to evaluate against. A stored table that
// cannot be normalized degrades to an empty table, so every row is left
// untouched, and its problems are reported on the result.
func (s *RepricerService) loadRules(ctx context.Context) (repricer.RuleConfig, []string, error) {
	cfg, err := s.rules.Load(ctx)
	if err == nil {
		return cfg, nil, nil
	}
	var cerr *repricer.ConfigError
	if errors.As(err, &cerr) {
		log.With(ctx, s.logger).Warn("Stored rule table is invalid, leaving every listing unchanged",
			zap.Strings("problems", cerr.Problems))
		return repricer.RuleConfig{}, cerr.Problems, nil
	}
	return repricer.RuleConfig{}, nil, fmt.Errorf("failed to load rules: %w", err)
}

func (s *RepricerService) fail(ctx context.Context, req RunRequest, err error, start time.Time) {
	tracing.RecordError(ctx, err)
	metrics.RecordRun(req.Mode, req.Trigger, errorStatus(err), repricer.Summary{}, s.now().Sub(start))
	log.With(ctx, s.logger).Error("Repricing run failed",
		zap.String("mode", string(req.Mode)),
		zap.String("trigger", req.Trigger),
		zap.Error(err))
}

func (s *RepricerService) publish(ctx context.Context, event *events.Event) {
	err := retry.Do(ctx, s.retry, s.logger, func() error {
		err := s.publisher.Publish(ctx, event)
		if err != nil && !retry.IsRetryableError(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		metrics.RecordEventPublished(event.Type, "failure")
		log.With(ctx, s.logger).Error("Failed to publish event",
			zap.String("event_type", event.Type),
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}
	metrics.RecordEventPublished(event.Type, "success")
}

// ConfigView is the stored rule table plus any problems that make runs
// against it degrade to "date unknown".
type ConfigView struct {
	repricer.Document
	Problems []string `json:"problems,omitempty"`
}

// GetConfig returns the stored rule table in its document shape. An unusable
// table is still returned, with its problems listed.
func (s *RepricerService) GetConfig(ctx context.Context) (ConfigView, error) {
	cfg, err := s.rules.Load(ctx)
	if err == nil {
		err = cfg.Validate()
	}
	var cerr *repricer.ConfigError
	switch {
	case errors.As(err, &cerr):
		log.With(ctx, s.logger).Warn("Stored rule table is unusable", zap.Strings("problems", cerr.Problems))
		return ConfigView{Document: cfg.Document(), Problems: cerr.Problems}, nil
	case err != nil:
		return ConfigView{}, fmt.Errorf("failed to load rules: %w", err)
	}
	return ConfigView{Document: cfg.Document()}, nil
}

// UpdateConfig normalizes and stores a new rule table
func (s *RepricerService) UpdateConfig(ctx context.Context, doc repricer.Document) (repricer.Document, error) {
	cfg, err := repricer.Normalize(doc)
	if err == nil {
		err = s.rules.Save(ctx, cfg)
	}
	_ = s.audit.LogConfigUpdated(ctx, len(cfg.Rules), cfg.SeasonalRuleEnabled, len(cfg.ExcludedSKUs), err)
	if err != nil {
		metrics.RecordConfigUpdate("failure")
		return repricer.Document{}, err
	}
	metrics.RecordConfigUpdate("success")

	s.publish(ctx, events.NewEvent(events.TypeConfigUpdated, "rules", map[string]interface{}{
		"rules":            len(cfg.Rules),
		"seasonal_enabled": cfg.SeasonalRuleEnabled,
		"excluded_skus":    len(cfg.ExcludedSKUs),
	}))

	saved, err := s.rules.Load(ctx)
	if err != nil {
		return repricer.Document{}, err
	}
	return saved.Document(), nil
}

// GetRun retrieves a recorded run
func (s *RepricerService) GetRun(ctx context.Context, id uuid.UUID) (*repository.Run, error) {
	return s.runs.Get(ctx, id)
}

// ListRuns lists recorded runs, newest first
func (s *RepricerService) ListRuns(ctx context.Context, limit, offset int) ([]*repository.Run, error) {
	return s.runs.List(ctx, limit, offset)
}

func errorStatus(err error) string {
	var schemaErr *repricer.SchemaError
	var codecErr *codec.CodecError
	switch {
	case errors.As(err, &schemaErr):
		return "schema_error"
	case errors.As(err, &codecErr):
		return "codec_error"
	}
	return "error"
}
