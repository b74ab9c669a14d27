// Package observability configures the process-wide logging setup.
package observability

import (
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Instrument installs the default slog handler for the given level and
// format. "text" and "json" write directly to stderr; "otel" routes slog
// records through the OpenTelemetry log bridge and emits them as OTLP
// records on stderr, ready to be repointed at a collector exporter.
// Called once at startup before any component logs.
func Instrument(level slog.Level, format string) error {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "otel":
		var err error
		handler, err = newBridgeHandler(level)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// newBridgeHandler assembles the OpenTelemetry pipeline behind the slog
// front-end: stdout exporter, severity floor, logger provider, bridge.
func newBridgeHandler(level slog.Level) (slog.Handler, error) {
	exporter, err := stdoutlog.New(stdoutlog.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("creating stdout log exporter: %w", err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewSimpleProcessor(exporter), severityFloor(level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

	return otelslog.NewHandler("tokengate", otelslog.WithLoggerProvider(provider)), nil
}

// severityFloor maps an slog level onto the processor's minimum severity.
func severityFloor(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
