package event

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	logglobal "go.opentelemetry.io/otel/log/global"
)

var timeType = reflect.TypeOf(time.Time{})

func (b *Bus[T]) emitOTelEvent(event T, fallbackType string) {
	if b == nil {
		return
	}
	logger := logglobal.GetLoggerProvider().Logger("configwatch/internal/event")

	eventName, eventTime, body, attrs, ok := eventLogData(event, fallbackType, b.busName())
	if !ok {
		return
	}

	severity, severityText := severityForEvent(eventName)
	ctx := context.Background()
	if !logger.Enabled(ctx, otellog.EnabledParameters{Severity: severity, EventName: eventName}) {
		return
	}

	var record otellog.Record
	record.SetEventName(eventName)
	record.SetTimestamp(eventTime)
	record.SetObservedTimestamp(time.Now().UTC())
	record.SetSeverity(severity)
	record.SetSeverityText(severityText)
	record.SetBody(otellog.StringValue(body))
	if len(attrs) > 0 {
		record.AddAttributes(attrs...)
	}
	logger.Emit(ctx, record)
}

func severityForEvent(eventName string) (otellog.Severity, string) {
	switch eventName {
	case "watch_error":
		return otellog.SeverityWarn, "warn"
	default:
		return otellog.SeverityInfo, "info"
	}
}

// eventLogData extracts a name, timestamp, human-readable body, and
// attributes from an arbitrary bus event. Concrete event types published on
// this module's buses (FileEvent, and the detector package's ChangeEvent)
// are handled generically via eventFromFields rather than a closed type
// switch, since event cannot import detector without a cycle.
func eventLogData[T any](event T, fallbackType, busName string) (string, time.Time, string, []otellog.KeyValue, bool) {
	attrs := make([]otellog.KeyValue, 0, 8)
	if busName != "" {
		attrs = append(attrs, otellog.String("event.bus", busName))
	}

	var (
		eventName string
		eventTime time.Time
		body      string
	)

	if typed, ok := any(event).(Event); ok {
		eventName = strings.TrimSpace(typed.Type())
		eventTime = typed.Timestamp()
	}

	name, timestamp, extra, ok := eventFromFields(event)
	if ok {
		if eventName == "" {
			eventName = name
		}
		if eventTime.IsZero() {
			eventTime = timestamp
		}
		attrs = append(attrs, extra...)
	}

	if eventName == "" && fallbackType != "" && fallbackType != "unknown" {
		eventName = fallbackType
	}

	if eventName == "" || eventName == "unknown" {
		return "", time.Time{}, "", nil, false
	}

	if eventTime.IsZero() {
		eventTime = time.Now().UTC()
	}

	if body == "" {
		body = eventName
	}

	attrs = append(attrs, otellog.String("event.type", eventName))
	attrs = append(attrs, otellog.String("event.kind", fmt.Sprintf("%T", event)))
	return eventName, eventTime, body, attrs, true
}

// eventFromFields reads well-known field names off any struct-shaped event
// via reflection, so buses of application-defined event types (FileEvent
// here, ChangeEvent in the detector package) get the same OTel attribute
// treatment without eventLogData needing a concrete type switch.
func eventFromFields[T any](event T) (string, time.Time, []otellog.KeyValue, bool) {
	value := reflect.ValueOf(event)
	if !value.IsValid() {
		return "", time.Time{}, nil, false
	}
	if value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return "", time.Time{}, nil, false
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return "", time.Time{}, nil, false
	}

	eventName := ""
	for _, fieldName := range []string{"EventType", "Type"} {
		field := value.FieldByName(fieldName)
		if field.IsValid() && field.Kind() == reflect.String {
			if candidate := strings.TrimSpace(field.String()); candidate != "" {
				eventName = candidate
				break
			}
		}
	}

	eventTime := time.Now().UTC()
	for _, fieldName := range []string{"OccurredAt", "Timestamp", "At"} {
		field := value.FieldByName(fieldName)
		if field.IsValid() && field.Type() == timeType {
			eventTime = field.Interface().(time.Time)
			break
		}
	}

	attrs := make([]otellog.KeyValue, 0, 4)
	for _, fieldName := range []string{"Path", "WatchedPath"} {
		field := value.FieldByName(fieldName)
		if field.IsValid() && field.Kind() == reflect.String {
			if path := strings.TrimSpace(field.String()); path != "" {
				attrs = append(attrs, otellog.String("file.path", path))
			}
		}
	}
	for _, fieldName := range []string{"Op", "Operation"} {
		field := value.FieldByName(fieldName)
		if field.IsValid() && field.CanInterface() {
			if op := fmt.Sprint(field.Interface()); op != "" && op != "0" {
				attrs = append(attrs, otellog.String("file.operation", op))
			}
		}
	}
	configPathField := value.FieldByName("ConfigFilePath")
	if configPathField.IsValid() && configPathField.Kind() == reflect.String {
		if configPath := strings.TrimSpace(configPathField.String()); configPath != "" {
			attrs = append(attrs, otellog.String("config.path", configPath))
		}
	}

	if eventName == "" && len(attrs) == 0 {
		return "", time.Time{}, nil, false
	}
	return eventName, eventTime, attrs, true
}
