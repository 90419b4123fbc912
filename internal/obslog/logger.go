// Package obslog provides the structured logger used throughout the report
// worker, wrapping arbor.ILogger the same way the rest of the ecosystem does.
package obslog

import (
	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/writers"
)

// Logger wraps arbor.ILogger so every component depends on one small
// interface instead of the arbor package directly.
type Logger struct {
	arbor.ILogger
}

// New creates a logger at the given level writing to the console, plus an
// in-memory writer.
func New(level string) *Logger {
	arborLogger := arbor.NewLogger().
		WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: "2006-01-02T15:04:05Z07:00",
		}).
		WithMemoryWriter(models.WriterConfiguration{
			Type: models.LogWriterTypeMemory,
		}).
		WithLevelFromString(level)

	return &Logger{ILogger: arborLogger}
}

// Silent creates a logger that discards all output — used in tests so
// handler/store unit tests don't spam stderr.
func Silent() *Logger {
	arborLogger := arbor.NewLogger().WithWriters([]writers.IWriter{&discardWriter{}})
	return &Logger{ILogger: arborLogger}
}

// discardWriter implements writers.IWriter and drops everything written to
// it; it exists so Silent() never falls through to a globally registered
// writer.
type discardWriter struct{}

func (w *discardWriter) Write(p []byte) (int, error)           { return len(p), nil }
func (w *discardWriter) WithLevel(_ log.Level) writers.IWriter { return w }
func (w *discardWriter) GetFilePath() string                   { return "" }
func (w *discardWriter) Close() error                           { return nil }

// WithReportID returns a derived logger carrying reportId as a correlation
// id, so every log line emitted while handling one message can be traced
// back to the report it belongs to.
func (l *Logger) WithReportID(reportID string) *Logger {
	return &Logger{ILogger: l.ILogger.WithCorrelationId(reportID)}
}
