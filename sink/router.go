package sink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
	"github.com/c360/fieldstream/metric"
)

// Rule matches records to sinks. A record matches when its kind appears in
// Kinds (empty = any kind) and every tag in Tags equals the record's tag.
type Rule struct {
	Name  string
	Kinds []event.RecordKind
	Tags  map[string]string
	Sinks []string
}

func (r Rule) matches(rec event.Record) bool {
	if len(r.Kinds) > 0 {
		found := false
		for _, k := range r.Kinds {
			if k == rec.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(r.Tags) > 0 {
		tags := rec.Tags()
		for k, want := range r.Tags {
			if tags[k] != want {
				return false
			}
		}
	}
	return true
}

// Result is the outcome of one sink's write.
type Result struct {
	Sink string
	Err  error
}

// Router dispatches records to every sink matched by the rule set.
type Router struct {
	rules  []Rule
	sinks  map[string]Sink
	logger *slog.Logger
	core   *metric.CoreMetrics
}

// NewRouter validates that every rule references a registered sink.
func NewRouter(rules []Rule, sinks []Sink, logger *slog.Logger, core *metric.CoreMetrics) (*Router, error) {
	byName := make(map[string]Sink, len(sinks))
	for _, s := range sinks {
		if _, dup := byName[s.Name()]; dup {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Router", "NewRouter",
				"duplicate sink "+s.Name())
		}
		byName[s.Name()] = s
	}
	for _, rule := range rules {
		for _, name := range rule.Sinks {
			if _, ok := byName[name]; !ok {
				return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Router", "NewRouter",
					"rule "+rule.Name+" references unknown sink "+name)
			}
		}
	}

	if logger == nil {
		logger = slog.Default().With("component", "sink-router")
	}
	return &Router{rules: rules, sinks: byName, logger: logger, core: core}, nil
}

// Targets returns the sinks the record routes to, deduplicated across
// rules in rule order.
func (r *Router) Targets(rec event.Record) []Sink {
	seen := make(map[string]bool)
	var targets []Sink
	for _, rule := range r.rules {
		if !rule.matches(rec) {
			continue
		}
		for _, name := range rule.Sinks {
			if !seen[name] {
				seen[name] = true
				targets = append(targets, r.sinks[name])
			}
		}
	}
	return targets
}

// Dispatch writes the record to every matched sink concurrently and
// returns one result per sink. An unrouted record returns no results;
// the caller decides whether that is notable.
func (r *Router) Dispatch(ctx context.Context, rec event.Record) []Result {
	targets := r.Targets(rec)
	if len(targets) == 0 {
		return nil
	}

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, s Sink) {
			defer wg.Done()
			err := s.Write(ctx, rec)
			results[i] = Result{Sink: s.Name(), Err: err}

			status := "ok"
			if err != nil {
				status = "error"
				r.logger.Warn("sink write failed", "sink", s.Name(), "kind", rec.Kind, "error", err)
			}
			if r.core != nil {
				r.core.RecordSinkWrite(s.Name(), status)
			}
		}(i, target)
	}
	wg.Wait()
	return results
}

// DeliverTo writes the record to one named sink, bypassing rule matching.
// The retry path uses it to redeliver to exactly the sink that failed.
func (r *Router) DeliverTo(ctx context.Context, rec event.Record, name string) error {
	s, ok := r.sinks[name]
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Router", "DeliverTo", "unknown sink "+name)
	}
	err := s.Write(ctx, rec)
	if r.core != nil {
		status := "ok"
		if err != nil {
			status = "retry_error"
		}
		r.core.RecordSinkWrite(name, status)
	}
	return err
}

// Close closes every registered sink, returning the first error.
func (r *Router) Close() error {
	var first error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
