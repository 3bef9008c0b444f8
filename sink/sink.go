// Package sink delivers routed records to their destinations. The Router
// matches records against rules and dispatches to each matched sink
// independently, so one failing destination never blocks the others.
package sink

import (
	"context"

	"github.com/c360/fieldstream/event"
)

// Sink writes records to one destination. Write errors carry the error
// taxonomy: transient errors are retried by the DLQ manager, invalid
// errors dead-letter immediately.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec event.Record) error
	Close() error
}
