package logging

import (
	"context"
	"sort"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	logglobal "go.opentelemetry.io/otel/log/global"
)

func emitOTelLogRecord(entry LogEntry) {
	logger := logglobal.GetLoggerProvider().Logger("configwatch/internal/logging")

	severity, severityText := severityForLevel(entry.Level)
	ctx := context.Background()
	if !logger.Enabled(ctx, otellog.EnabledParameters{Severity: severity}) {
		return
	}

	var record otellog.Record
	record.SetTimestamp(entry.Timestamp)
	record.SetObservedTimestamp(time.Now().UTC())
	record.SetSeverity(severity)
	record.SetSeverityText(severityText)
	record.SetBody(otellog.StringValue(entry.Message))
	if len(entry.Context) > 0 {
		keys := make([]string, 0, len(entry.Context))
		for key := range entry.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		attrs := make([]otellog.KeyValue, 0, len(keys))
		for _, key := range keys {
			attrs = append(attrs, otellog.String(key, entry.Context[key]))
		}
		record.AddAttributes(attrs...)
	}
	logger.Emit(ctx, record)
}

func severityForLevel(level Level) (otellog.Severity, string) {
	switch level {
	case LevelDebug:
		return otellog.SeverityDebug, "debug"
	case LevelWarning:
		return otellog.SeverityWarn, "warn"
	case LevelError:
		return otellog.SeverityError, "error"
	default:
		return otellog.SeverityInfo, "info"
	}
}
