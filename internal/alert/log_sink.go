package alert

import (
	"context"
	"log"

	"github.com/agentchain/replaycore/internal/anomaly"
)

// LogSink writes anomalies through an ambient *log.Logger, injected
// rather than taken from a package global.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink wraps logger, defaulting to a "[Alert] "-prefixed stdout
// logger when logger is nil.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.New(log.Writer(), "[Alert] ", log.LstdFlags)
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, a anomaly.Record) error {
	s.logger.Printf("anomaly kind=%s code=%s severity=%s taskPda=%s repeatCount=%d message=%q",
		a.Kind, a.Code, a.Severity, a.TaskPda, a.RepeatCount, a.Message)
	return nil
}
