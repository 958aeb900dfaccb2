package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/log"
	"github.com/sedori-tools/repricer/internal/repository"
	"github.com/sedori-tools/repricer/internal/repricer"
	"github.com/sedori-tools/repricer/internal/service"
)

// Repricer is the service surface the handlers need
type Repricer interface {
	Run(ctx context.Context, req service.RunRequest) (*service.RunResponse, error)
	GetConfig(ctx context.Context) (service.ConfigView, error)
	UpdateConfig(ctx context.Context, doc repricer.Document) (repricer.Document, error)
	GetRun(ctx context.Context, id uuid.UUID) (*repository.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*repository.Run, error)
}

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Handler serves the repricer HTTP API
type Handler struct {
	svc            Repricer
	maxUploadBytes int64
	loc            *time.Location
	logger         *zap.Logger
}

// NewHandler creates a new handler. A zero maxUploadBytes disables the limit.
func NewHandler(svc Repricer, maxUploadBytes int64, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes, loc: loc, logger: logger}
}

// SetupRoutes registers the repricer routes under r
func (h *Handler) SetupRoutes(r *gin.RouterGroup) {
	repricerGroup := r.Group("/repricer")
	{
		repricerGroup.GET("/config", h.GetConfig)
		repricerGroup.PUT("/config", h.UpdateConfig)

		repricerGroup.POST("/preview", h.Preview)
		repricerGroup.POST("/apply", h.Apply)

		repricerGroup.GET("/runs", h.ListRuns)
		repricerGroup.GET("/runs/:id", h.GetRun)
		repricerGroup.GET("/runs/:id/files/:kind", h.DownloadRunFile)
	}
}

// GetConfig returns the stored rule table
func (h *Handler) GetConfig(c *gin.Context) {
	doc, err := h.svc.GetConfig(c.Request.Context())
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// UpdateConfig replaces the rule table
func (h *Handler) UpdateConfig(c *gin.Context) {
	var doc repricer.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		h.abort(c, newAPIError(http.StatusBadRequest, ErrCodeInvalidFormat, "request body is not a rule document", err))
		return
	}
	saved, err := h.svc.UpdateConfig(c.Request.Context(), doc)
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// Preview evaluates an uploaded file without writing anything
func (h *Handler) Preview(c *gin.Context) {
	h.run(c, repricer.ModePreview)
}

// Apply evaluates an uploaded file and writes the output files
func (h *Handler) Apply(c *gin.Context) {
	h.run(c, repricer.ModeApply)
}

func (h *Handler) run(c *gin.Context, mode repricer.Mode) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	data, name, err := h.readUpload(c)
	if err != nil {
		h.abort(c, err)
		return
	}

	var runDate time.Time
	if raw := c.PostForm("date"); raw != "" {
		runDate, err = time.ParseInLocation("2006-01-02", raw, h.loc)
		if err != nil {
			h.abort(c, newAPIError(http.StatusBadRequest, ErrCodeBadRequest, "date must be YYYY-MM-DD", err))
			return
		}
	}

	resp, err := h.svc.Run(c.Request.Context(), service.RunRequest{
		Data:     data,
		FileName: name,
		Mode:     mode,
		Trigger:  service.TriggerAPI,
		RunDate:  runDate,
	})
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) readUpload(c *gin.Context) ([]byte, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", newAPIError(http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "file exceeds the upload limit", err)
		}
		return nil, "", newAPIError(http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" is required", err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	return data, filepath.Base(fh.Filename), nil
}

// GetRun returns one recorded run
func (h *Handler) GetRun(c *gin.Context) {
	run, ok := h.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns returns recorded runs, newest first
func (h *Handler) ListRuns(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		h.abort(c, newAPIError(http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer", err))
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		h.abort(c, newAPIError(http.StatusBadRequest, ErrCodeBadRequest, "offset must be a non-negative integer", err))
		return
	}

	runs, err := h.svc.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "limit": limit, "offset": offset})
}

// DownloadRunFile streams the updated listing or the report of an apply run
func (h *Handler) DownloadRunFile(c *gin.Context) {
	run, ok := h.lookupRun(c)
	if !ok {
		return
	}
	var path string
	switch c.Param("kind") {
	case "updated":
		path = run.UpdatedPath
	case "report":
		path = run.ReportPath
	default:
		h.abort(c, newAPIError(http.StatusBadRequest, ErrCodeBadRequest, "kind must be updated or report", nil))
		return
	}
	if path == "" {
		h.abort(c, newAPIError(http.StatusNotFound, ErrCodeNotFound, "run has no output files", nil))
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (h *Handler) lookupRun(c *gin.Context) (*repository.Run, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.abort(c, newAPIError(http.StatusBadRequest, ErrCodeBadRequest, "run id must be a UUID", err))
		return nil, false
	}
	run, err := h.svc.GetRun(c.Request.Context(), id)
	if err != nil {
		h.abort(c, err)
		return nil, false
	}
	return run, true
}

func (h *Handler) abort(c *gin.Context, err error) {
	apiErr := sanitizeError(err)
	_ = c.Error(err)
	if apiErr.Status >= http.StatusInternalServerError {
		log.With(c.Request.Context(), h.logger).Error("Request failed", zap.Error(err))
	}
	c.AbortWithStatusJSON(apiErr.Status, apiErr)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
