package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	GrantType     string
	DeviceID      string
	Success       bool
	FailureReason string
}

// AuditLogger provides structured security audit logging
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt logs token-endpoint authentication attempts
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.GrantType != "" {
		attrs = append(attrs, slog.String("grant_type", event.GrantType))
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogTwoFactorChange logs enrollment changes to second-factor providers
func (al *AuditLogger) LogTwoFactorChange(eventType, userID, providerType string) {
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit",
		slog.String("audit_type", "two_factor"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		slog.String("provider_type", providerType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}

// LogDeviceRegistered logs first sight of a new device for a user
func (al *AuditLogger) LogDeviceRegistered(userID, deviceIdentifier, deviceType string) {
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit",
		slog.String("audit_type", "device"),
		slog.String("event_type", "device_registered"),
		slog.String("user_id", userID),
		slog.String("device_identifier", deviceIdentifier),
		slog.String("device_type", deviceType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}
