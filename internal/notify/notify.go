package notify

import (
	"log/slog"

	"github.com/vaultlink/vaultlink/internal/game"
)

// Severity classifies a user-facing outcome line. The core never formats
// colored text; the command layer picks the rendering per severity.
type Severity int

const (
	Success Severity = iota
	Warning
	Error
)

// String returns the severity label used in logs.
func (s Severity) String() string {
	switch s {
	case Success:
		return "success"
	case Warning:
		return "warning"
	default:
		return "error"
	}
}

// Sink delivers a classified outcome line to a player. Implementations that
// touch the game chat must marshal onto the main loop themselves.
type Sink interface {
	Send(player game.PlayerID, severity Severity, text string)
}

// LogSink writes outcome lines through the structured logger. Stands in for
// the chat sink in tests and headless runs.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs a logging sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(player game.PlayerID, severity Severity, text string) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Info("outcome",
		slog.String("player", string(player)),
		slog.String("severity", severity.String()),
		slog.String("text", text))
}
