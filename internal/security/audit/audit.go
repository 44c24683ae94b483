package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/storelens/storelens/internal/observability/requestid"
)

// Logger writes the security audit trail as structured log records
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("log_type", "audit"))}
}

// LogAction records that userID performed action on tenantID
func (al *Logger) LogAction(ctx context.Context, userID, action, tenantID, status string, details map[string]interface{}) {
	attrs := []slog.Attr{
		slog.String("action", action),
		slog.String("user_id", userID),
		slog.String("tenant_id", tenantID),
		slog.String("status", status),
		slog.String("request_id", requestid.FromContext(ctx)),
		slog.Time("timestamp", time.Now()),
	}
	if len(details) > 0 {
		attrs = append(attrs, slog.Any("details", details))
	}
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

// LogLogin records a login attempt. email is kept for failed attempts where no user id exists.
func (al *Logger) LogLogin(ctx context.Context, userID, email, status string) {
	al.LogAction(ctx, userID, "login", "", status, map[string]interface{}{"email": email})
}

// LogDenied records a request refused by an authorization or rate-limit check
func (al *Logger) LogDenied(ctx context.Context, userID, tenantID, reason string) {
	al.LogAction(ctx, userID, "access_denied", tenantID, "denied", map[string]interface{}{"reason": reason})
}
