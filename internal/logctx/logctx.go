// Package logctx centralizes the pipeline's structured logging
// conventions: an injected *slog.Logger, never a package-level global
// beyond slog's own default, with a fixed set of field names every stage
// uses when it logs. Named helpers keep every call site logging the same
// shape.
package logctx

import "log/slog"

// Session returns a logger pre-bound with the session/tenant identifiers
// that should appear on every log line for one pipeline run.
func Session(base *slog.Logger, sessionID, tenantID string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(slog.String("session_id", sessionID), slog.String("tenant_id", tenantID))
}

// StageStart logs stage entry at Info.
func StageStart(l *slog.Logger, stage string) {
	l.Info("stage started", slog.String("stage", stage))
}

// StageDone logs stage completion at Info with its outcome and duration.
func StageDone(l *slog.Logger, stage, outcome string, durationMs int64) {
	l.Info("stage completed",
		slog.String("stage", stage),
		slog.String("outcome", outcome),
		slog.Int64("duration_ms", durationMs))
}

// NonFatal logs a recorded, non-aborting error at Warn.
func NonFatal(l *slog.Logger, stage, kind, message string) {
	l.Warn("non-fatal stage error",
		slog.String("stage", stage),
		slog.String("kind", kind),
		slog.String("message", message))
}

// Fatal logs a session-terminating error at Error.
func Fatal(l *slog.Logger, stage, kind, message string) {
	l.Error("fatal stage error",
		slog.String("stage", stage),
		slog.String("kind", kind),
		slog.String("message", message))
}
