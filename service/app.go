// Package service assembles the application from configuration: it builds
// every stage, wires them into the pipeline, and manages startup and
// shutdown ordering. The binary in cmd/fieldstream is a thin shell around
// this package.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/fieldstream/anomaly"
	"github.com/c360/fieldstream/command"
	"github.com/c360/fieldstream/component"
	"github.com/c360/fieldstream/config"
	"github.com/c360/fieldstream/dedup"
	"github.com/c360/fieldstream/dlq"
	"github.com/c360/fieldstream/enrich"
	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
	"github.com/c360/fieldstream/health"
	"github.com/c360/fieldstream/ingress"
	"github.com/c360/fieldstream/metric"
	"github.com/c360/fieldstream/natsclient"
	"github.com/c360/fieldstream/pkg/buffer"
	"github.com/c360/fieldstream/pipeline"
	"github.com/c360/fieldstream/sink"
	"github.com/c360/fieldstream/transform"
	"github.com/c360/fieldstream/validate"
	"github.com/c360/fieldstream/window"
)

// App is the assembled application.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *metric.MetricsRegistry
	monitor  *health.Monitor
	nats     *natsclient.Client

	dedupStore dedup.Store
	devices    *validate.StaticRegistry
	router     *sink.Router
	dlqManager *dlq.Manager
	pipe       *pipeline.Pipeline
	dispatcher *command.Dispatcher
	consumer   *ingress.Consumer
	httpServer *ingress.Server

	// components started in order and stopped in reverse
	components []component.Lifecycle
}

// New builds the application from configuration. Nothing is started;
// call Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "App", "New", "config required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
		monitor:  health.NewMonitor(),
	}
	core := app.registry.Core

	nc, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.Service.Name),
		natsclient.WithLogger(logger.With("component", "natsclient")),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()),
		natsclient.WithDrainTimeout(cfg.NATS.DrainTimeout.Std()),
		natsclient.WithStatusCallback(func(connected bool) {
			core.RecordNATSStatus(connected)
			if connected {
				app.monitor.UpdateHealthy("nats", "connected")
			} else {
				app.monitor.UpdateUnhealthy("nats", "disconnected")
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	app.nats = nc

	if err := nc.Connect(ctx); err != nil {
		return nil, err
	}

	if err := app.buildDedup(ctx); err != nil {
		return nil, err
	}

	validator, err := app.buildValidator()
	if err != nil {
		return nil, err
	}

	chain, err := app.buildTransforms()
	if err != nil {
		return nil, err
	}

	windows, err := window.NewAggregator(window.Config{
		Kind:   window.Kind(cfg.Window.Kind),
		Size:   cfg.Window.Size.Std(),
		Stride: cfg.Window.Stride.Std(),
		Grace:  cfg.Window.Grace.Std(),
	})
	if err != nil {
		return nil, err
	}

	detector, err := app.buildDetector()
	if err != nil {
		return nil, err
	}

	router, err := app.buildRouter(core)
	if err != nil {
		return nil, err
	}
	app.router = router

	if err := app.buildDLQ(router, core); err != nil {
		return nil, err
	}

	if cfg.Command.Enabled {
		app.dispatcher, err = command.NewDispatcher(command.DispatcherDeps{
			Publisher: nc,
			Logger:    logger.With("component", "command"),
		}, command.Config{
			Subject: cfg.Command.Subject,
			AckTTL:  cfg.Command.AckTTL.Std(),
		})
		if err != nil {
			return nil, err
		}
	}

	deps := pipeline.Deps{
		Dedup:      app.dedupStore,
		Validator:  validator,
		Enricher:   enrich.NewEnricher(nil),
		Transforms: chain,
		Windows:    windows,
		Detector:   detector,
		Router:     router,
		DLQ:        app.dlqManager,
		Registry:   app.registry,
		Core:       core,
		Logger:     logger.With("component", "pipeline"),
	}
	if app.dispatcher != nil {
		deps.Acks = app.dispatcher
	}
	app.pipe, err = pipeline.New(pipeline.Config{
		IntakeSize:     cfg.Pipeline.IntakeSize,
		OverflowPolicy: buffer.ParsePolicy(cfg.Pipeline.OverflowPolicy),
		Shards:         cfg.Pipeline.Shards,
		SweepInterval:  cfg.Window.Sweep.Std(),
	}, deps)
	if err != nil {
		return nil, err
	}

	app.consumer, err = ingress.NewConsumer(ingress.ConsumerConfig{
		TelemetrySubject: cfg.NATS.TelemetrySubject,
		StateSubject:     cfg.NATS.StateSubject,
		AckSubject:       cfg.NATS.AckSubject,
		QueueGroup:       cfg.NATS.QueueGroup,
	}, ingress.ConsumerDeps{
		NATSClient:      nc,
		MetricsRegistry: app.registry,
		Core:            core,
		Logger:          logger.With("component", "ingress-nats"),
		Submit:          app.pipe.Submit,
		Reject: func(topic string, data []byte, err error) {
			app.dlqManager.DeadLetterRaw(ctx, data, "", dlq.ReasonParse, err)
		},
	})
	if err != nil {
		return nil, err
	}

	if cfg.HTTP.Enabled {
		app.httpServer, err = ingress.NewServer(ingress.ServerConfig{
			Addr:        cfg.HTTP.Addr,
			ServiceName: cfg.Service.Name,
		}, ingress.ServerDeps{
			Logger:         logger.With("component", "ingress-http"),
			Core:           core,
			Submit:         app.pipe.Submit,
			Monitor:        app.monitor,
			MetricsHandler: app.registry.Handler(),
			Replayer:       app.dlqManager,
			Devices:        app.devices,
		})
		if err != nil {
			return nil, err
		}
	}

	// startup order: failure path first, then processing, then intake
	app.components = append(app.components, app.dlqManager)
	if app.dispatcher != nil {
		app.components = append(app.components, app.dispatcher)
	}
	app.components = append(app.components, app.pipe, app.consumer)
	if app.httpServer != nil {
		app.components = append(app.components, app.httpServer)
	}
	return app, nil
}

func (a *App) buildDedup(ctx context.Context) error {
	switch a.cfg.Dedup.Backend {
	case config.DedupBackendKV:
		store, err := dedup.NewKVStore(ctx, a.nats, a.cfg.Dedup.Bucket, a.cfg.Dedup.TTL.Std())
		if err != nil {
			return err
		}
		a.dedupStore = store
	default:
		store, err := dedup.NewMemoryStore(ctx, a.cfg.Dedup.TTL.Std(), a.registry)
		if err != nil {
			return err
		}
		a.dedupStore = store
	}
	return nil
}

func (a *App) buildValidator() (*validate.Validator, error) {
	registry := validate.NewStaticRegistry(a.cfg.Service.DeviceLiveness.Std())
	for _, d := range a.cfg.Devices {
		if err := registry.Register(validate.Device{
			DeviceID: d.DeviceID,
			Tenant:   d.Tenant,
			Tags:     d.Tags,
		}); err != nil {
			return nil, err
		}
	}

	a.devices = registry

	ranges := make(map[string]validate.Range, len(a.cfg.Ranges))
	for name, r := range a.cfg.Ranges {
		ranges[name] = validate.Range{Min: r.Min, Max: r.Max}
	}
	return validate.NewValidator(registry, ranges, 0)
}

func (a *App) buildTransforms() (*transform.Chain, error) {
	if len(a.cfg.Transforms) == 0 {
		return nil, nil
	}
	descriptors := make([]transform.Descriptor, 0, len(a.cfg.Transforms))
	for _, tc := range a.cfg.Transforms {
		descriptors = append(descriptors, transform.Descriptor{
			Type:   tc.Type,
			Field:  tc.Field,
			Params: tc.Params,
		})
	}
	return transform.NewChain(descriptors)
}

func (a *App) buildDetector() (*anomaly.Detector, error) {
	if len(a.cfg.Detectors) == 0 {
		return nil, nil
	}

	strategies := make(map[string]anomaly.Strategy, len(a.cfg.Detectors))
	maxKeys := 0
	for _, dc := range a.cfg.Detectors {
		var (
			strategy anomaly.Strategy
			err      error
		)
		switch dc.Strategy {
		case "ewma":
			strategy, err = anomaly.NewEWMA(dc.Alpha, dc.Threshold, dc.Critical)
		default:
			strategy, err = anomaly.NewZScore(dc.Threshold, dc.Critical, dc.MinStddev)
		}
		if err != nil {
			return nil, err
		}
		strategies[dc.Metric] = strategy
		if dc.MaxKeys > maxKeys {
			maxKeys = dc.MaxKeys
		}
	}
	return anomaly.NewDetector(strategies, a.cfg.Window.Size.Std(), maxKeys)
}

func (a *App) buildRouter(core *metric.CoreMetrics) (*sink.Router, error) {
	sinks := make([]sink.Sink, 0, len(a.cfg.Sinks))
	for _, sc := range a.cfg.Sinks {
		s, err := a.buildSink(sc)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	rules := make([]sink.Rule, 0, len(a.cfg.Routes))
	for _, rc := range a.cfg.Routes {
		kinds := make([]event.RecordKind, 0, len(rc.Kinds))
		for _, k := range rc.Kinds {
			kinds = append(kinds, event.RecordKind(k))
		}
		rules = append(rules, sink.Rule{
			Name:  rc.Name,
			Kinds: kinds,
			Tags:  rc.Tags,
			Sinks: rc.Sinks,
		})
	}
	return sink.NewRouter(rules, sinks, a.logger.With("component", "sink-router"), core)
}

func (a *App) buildSink(sc config.SinkConfig) (sink.Sink, error) {
	switch sc.Type {
	case "nats":
		return sink.NewNATSSink(sc.Name, a.nats, sc.Subject)
	case "file":
		return sink.NewFileSink(sc.Name, sc.Path)
	case "httppost":
		return sink.NewHTTPPostSink(sc.Name, sc.URL, sc.Timeout.Std())
	case "websocket":
		ws, err := sink.NewWebSocketSink(sc.Name, sc.Addr, sc.Path,
			a.logger.With("component", "sink-websocket"))
		if err != nil {
			return nil, err
		}
		// websocket sinks run a listener, so they join the lifecycle set
		a.components = append(a.components, ws)
		return ws, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "App", "buildSink",
			"unknown sink type "+sc.Type)
	}
}

func (a *App) buildDLQ(router *sink.Router, core *metric.CoreMetrics) error {
	var store dlq.Store
	if a.cfg.DLQ.Path != "" {
		fs, err := dlq.NewFileStore(a.cfg.DLQ.Path)
		if err != nil {
			return err
		}
		store = fs
	} else {
		store = dlq.NewMemoryStore(a.cfg.DLQ.MaxSize)
	}

	manager, err := dlq.NewManager(dlq.ManagerDeps{
		Store:  store,
		Logger: a.logger.With("component", "dlq"),
		Core:   core,
		Deliver: func(ctx context.Context, rec event.Record, name string) error {
			return router.DeliverTo(ctx, rec, name)
		},
	}, a.cfg.Retry.Policy())
	if err != nil {
		return err
	}
	a.dlqManager = manager
	return nil
}

// Start brings every component up in dependency order. A failure stops
// the components already started.
func (a *App) Start(ctx context.Context) error {
	for i, c := range a.components {
		if err := c.Start(ctx); err != nil {
			a.logger.Error("component start failed", "component", c.Name(), "error", err)
			a.stopComponents(i-1, 5*time.Second)
			return err
		}
		a.monitor.UpdateHealthy(c.Name(), "started")
		a.logger.Info("component started", "component", c.Name())
	}
	return nil
}

// Stop shuts components down in reverse order, closes the sinks, then
// the NATS connection.
func (a *App) Stop(ctx context.Context, timeout time.Duration) error {
	a.stopComponents(len(a.components)-1, timeout)
	if err := a.router.Close(); err != nil {
		a.logger.Warn("sink close failed", "error", err)
	}
	_ = a.dedupStore.Close()
	return a.nats.Close(ctx)
}

func (a *App) stopComponents(from int, timeout time.Duration) {
	for i := from; i >= 0; i-- {
		c := a.components[i]
		if err := c.Stop(timeout); err != nil {
			a.logger.Warn("component stop failed", "component", c.Name(), "error", err)
		} else {
			a.logger.Info("component stopped", "component", c.Name())
		}
		a.monitor.Remove(c.Name())
	}
}

// Health returns the aggregated health status across components.
func (a *App) Health() health.Status {
	return a.monitor.System(a.cfg.Service.Name)
}

// Pipeline exposes the pipeline for introspection.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipe }

// Dispatcher exposes the command dispatcher, nil when commands are
// disabled.
func (a *App) Dispatcher() *command.Dispatcher { return a.dispatcher }

// DLQ exposes the retry/DLQ manager.
func (a *App) DLQ() *dlq.Manager { return a.dlqManager }
