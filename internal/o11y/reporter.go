// Package o11y provides observability utilities.
package o11y

import (
	"context"
	"log/slog"
)

// Reporter is an interface for sending human-facing messages to an
// observability backend.
type Reporter interface {
	SendMessage(ctx context.Context, msg string)
}

// LogReporter reports through the process logs only. It is the default
// when no external backend is configured.
type LogReporter struct{}

// SendMessage implements Reporter.
func (LogReporter) SendMessage(ctx context.Context, msg string) {
	slog.InfoContext(ctx, msg)
}
