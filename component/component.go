// Package component defines the lifecycle contract and shared dependencies
// for pipeline components (ingress consumers, sinks, the pipeline itself).
package component

import (
	"context"
	"time"
)

// State represents the current lifecycle state of a component
type State int

const (
	// StateCreated indicates the component was constructed but not started
	StateCreated State = iota
	// StateStarted indicates the component is running
	StateStarted
	// StateStopped indicates the component was stopped
	StateStopped
	// StateFailed indicates the component failed during a lifecycle operation
	StateFailed
)

// String returns a string representation of the component state
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lifecycle is implemented by components with a managed start/stop cycle:
//
//   - Start(ctx) begins processing; the context governs the component's
//     whole running life, not just the call.
//   - Stop(timeout) drains gracefully, returning once in-flight work is
//     finished or the timeout elapses.
type Lifecycle interface {
	Name() string
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
