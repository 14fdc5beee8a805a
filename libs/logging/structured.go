// Package logging provides structured logging utilities for export runs
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ExportLogger wraps zap.Logger with export-specific event helpers
type ExportLogger struct {
	*zap.Logger
	fields map[string]interface{}
}

// Config holds logging configuration
type Config struct {
	Level       string            `json:"level" yaml:"level"`
	Format      string            `json:"format" yaml:"format"` // "json" or "console"
	OutputPath  string            `json:"output_path" yaml:"output_path"`
	Fields      map[string]string `json:"fields" yaml:"fields"`
	Development bool              `json:"development" yaml:"development"`
}

// NewLogger creates a new structured logger
func NewLogger(config Config) (*ExportLogger, error) {
	var zapConfig zap.Config

	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(config.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	if config.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// stdout is reserved for the result document
	zapConfig.OutputPaths = []string{"stderr"}
	if config.OutputPath != "" {
		zapConfig.OutputPaths = []string{config.OutputPath}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{}, len(config.Fields))
	zapFields := make([]zap.Field, 0, len(config.Fields))
	for k, v := range config.Fields {
		fields[k] = v
		zapFields = append(zapFields, zap.String(k, v))
	}

	return &ExportLogger{
		Logger: logger.With(zapFields...),
		fields: fields,
	}, nil
}

// NewDefaultLogger creates a logger with sensible defaults
func NewDefaultLogger() *ExportLogger {
	config := Config{
		Level:  "info",
		Format: "json",
		Fields: map[string]string{
			"service": "commerce-export",
		},
	}

	logger, err := NewLogger(config)
	if err != nil {
		zapLogger, _ := zap.NewProduction()
		return &ExportLogger{
			Logger: zapLogger,
			fields: map[string]interface{}{"service": "commerce-export"},
		}
	}

	return logger
}

// Wrap adapts an existing zap logger, e.g. zap.NewNop() in tests.
func Wrap(logger *zap.Logger) *ExportLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportLogger{Logger: logger, fields: map[string]interface{}{}}
}

// WithField adds a field to the logger context
func (l *ExportLogger) WithField(key string, value interface{}) *ExportLogger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields adds multiple fields to the logger context
func (l *ExportLogger) WithFields(fields map[string]interface{}) *ExportLogger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		newFields[k] = v
		zapFields = append(zapFields, zap.Any(k, v))
	}

	return &ExportLogger{
		Logger: l.Logger.With(zapFields...),
		fields: newFields,
	}
}

// Fields returns a copy of the context fields attached to this logger.
func (l *ExportLogger) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		out[k] = v
	}
	return out
}

// LogPipelineEvent logs a pipeline state transition or step event
func (l *ExportLogger) LogPipelineEvent(event string, fields map[string]interface{}) {
	allFields := map[string]interface{}{
		"event": event,
	}
	for k, v := range fields {
		allFields[k] = v
	}

	l.WithFields(allFields).Info("Pipeline event")
}

// LogPerformanceMetric logs performance-related metrics
func (l *ExportLogger) LogPerformanceMetric(metric string, value interface{}, unit string) {
	l.WithFields(map[string]interface{}{
		"metric": metric,
		"value":  value,
		"unit":   unit,
		"type":   "performance",
	}).Info("Performance metric")
}

// LogDataQualityEvent logs enrichment gaps such as missing categories or stock.
// The level follows severity; unknown severities log as warnings.
func (l *ExportLogger) LogDataQualityEvent(entity string, issue string, severity string) {
	l.WithFields(map[string]interface{}{
		"entity":   entity,
		"issue":    issue,
		"severity": severity,
		"type":     "data_quality",
	}).Log(severityLevel(severity), "Data quality issue")
}

func severityLevel(severity string) zapcore.Level {
	switch strings.ToLower(severity) {
	case "debug":
		return zapcore.DebugLevel
	case "info", "low":
		return zapcore.InfoLevel
	case "error", "high", "critical":
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

// Sync flushes any buffered log entries
func (l *ExportLogger) Sync() error {
	return l.Logger.Sync()
}
