package component

import (
	"log/slog"

	"github.com/c360/fieldstream/metric"
	"github.com/c360/fieldstream/natsclient"
)

// Dependencies provides the external collaborators components receive at
// construction time. Constructors take this struct instead of ambient
// globals so wiring stays explicit and testable.
type Dependencies struct {
	NATSClient      *natsclient.Client      // NATS client for messaging (can be nil for offline components)
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
}

// GetLogger returns the configured logger or the process default.
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger carrying the component name.
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
