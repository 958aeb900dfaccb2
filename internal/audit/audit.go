package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/log"
)

// Results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Event represents an audit event
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Actor      string                 `json:"actor"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID string                 `json:"resource_id"`
	Details    map[string]interface{} `json:"details"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Result     string                 `json:"result"`
	Error      string                 `json:"error,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// ZapAuditLogger implements audit logging using zap
type ZapAuditLogger struct {
	logger *zap.Logger
}

// NewZapAuditLogger creates a new zap-based audit logger
func NewZapAuditLogger(logger *zap.Logger) *ZapAuditLogger {
	return &ZapAuditLogger{
		logger: logger,
	}
}

// Log logs an audit event
func (l *ZapAuditLogger) Log(ctx context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("audit_id", event.ID),
		zap.String("audit_type", event.Type),
		zap.String("audit_action", event.Action),
		zap.String("audit_resource", event.Resource),
		zap.String("audit_resource_id", event.ResourceID),
		zap.String("audit_result", event.Result),
		zap.Time("audit_timestamp", event.Timestamp),
	}

	if event.Actor != "" {
		fields = append(fields, zap.String("audit_actor", event.Actor))
	}

	if event.IPAddress != "" {
		fields = append(fields, zap.String("audit_ip_address", event.IPAddress))
	}

	if event.UserAgent != "" {
		fields = append(fields, zap.String("audit_user_agent", event.UserAgent))
	}

	if event.Error != "" {
		fields = append(fields, zap.String("audit_error", event.Error))
	}

	if len(event.Details) > 0 {
		detailsJSON, _ := json.Marshal(event.Details)
		fields = append(fields, zap.String("audit_details", string(detailsJSON)))
	}

	logger := log.With(ctx, l.logger)
	if event.Result == ResultSuccess {
		logger.Info("Audit event", fields...)
	} else {
		logger.Error("Audit event", fields...)
	}

	return nil
}

// Manager manages audit logging
type Manager struct {
	logger Logger
	now    func() time.Time
}

// NewManager creates a new audit manager
func NewManager(logger Logger) *Manager {
	return &Manager{
		logger: logger,
		now:    time.Now,
	}
}

func (m *Manager) event(ctx context.Context, typ, action, resource, resourceID string, details map[string]interface{}, err error) Event {
	ip, ua := GetAuditInfo(ctx)
	event := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Actor:      actorFrom(ctx),
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		IPAddress:  ip,
		UserAgent:  ua,
		Timestamp:  m.now(),
		Result:     ResultSuccess,
	}
	if err != nil {
		event.Result = ResultFailure
		event.Error = err.Error()
	}
	return event
}

// LogConfigUpdated records a change to the rule table
func (m *Manager) LogConfigUpdated(ctx context.Context, rules int, seasonal bool, excluded int, err error) error {
	return m.logger.Log(ctx, m.event(ctx, "config", "update", "rule_config", "rules", map[string]interface{}{
		"rules":            rules,
		"seasonal_enabled": seasonal,
		"excluded_skus":    excluded,
	}, err))
}

// LogRunApplied records an apply run that produced output files
func (m *Manager) LogRunApplied(ctx context.Context, runID, sourceFile string, updatedRows int, updatedPath string, err error) error {
	return m.logger.Log(ctx, m.event(ctx, "run", "apply", "repricer_run", runID, map[string]interface{}{
		"source_file":  sourceFile,
		"updated_rows": updatedRows,
		"updated_path": updatedPath,
	}, err))
}

type contextKey string

const (
	ipAddressKey contextKey = "audit_ip_address"
	userAgentKey contextKey = "audit_user_agent"
	actorKey     contextKey = "audit_actor"
)

// WithAuditContext adds audit information to the context
func WithAuditContext(ctx context.Context, ipAddress, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ipAddressKey, ipAddress)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// WithActor names who triggered the action ("api", "scheduler", "cli")
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetAuditInfo extracts audit information from the context
func GetAuditInfo(ctx context.Context) (ipAddress, userAgent string) {
	if ip, ok := ctx.Value(ipAddressKey).(string); ok {
		ipAddress = ip
	}
	if ua, ok := ctx.Value(userAgentKey).(string); ok {
		userAgent = ua
	}
	return
}

func actorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}
