// Package enrich annotates validated events with pipeline context. The
// enricher never fails; missing context degrades to defaults.
package enrich

import (
	"time"

	"github.com/c360/fieldstream/event"
	"github.com/c360/fieldstream/validate"
)

// Tag keys the enricher writes.
const (
	TagSource   = "source"
	TagIngestTS = "ingest_ts"
)

// DefaultTenant is used when neither the event nor the registry resolves a
// tenant.
const DefaultTenant = "unassigned"

// Enricher fills in ingest metadata, tenant, and registry tags.
type Enricher struct {
	defaultTags map[string]string
}

// NewEnricher creates an enricher. defaultTags are applied to every event
// where the producer did not set the key.
func NewEnricher(defaultTags map[string]string) *Enricher {
	return &Enricher{defaultTags: defaultTags}
}

// Enrich mutates the event in place. Producer-set tags always win over
// registry tags, which win over defaults.
func (en *Enricher) Enrich(e *event.Event, device validate.Device, source string, ingestAt time.Time) {
	if e.Tags == nil {
		e.Tags = make(map[string]string)
	}

	if e.Tenant == "" {
		e.Tenant = device.Tenant
	}
	if e.Tenant == "" {
		e.Tenant = DefaultTenant
	}

	for k, v := range en.defaultTags {
		if _, ok := e.Tags[k]; !ok {
			e.Tags[k] = v
		}
	}
	for k, v := range device.Tags {
		if _, ok := e.Tags[k]; !ok {
			e.Tags[k] = v
		}
	}

	if _, ok := e.Tags[TagSource]; !ok && source != "" {
		e.Tags[TagSource] = source
	}
	e.Tags[TagIngestTS] = ingestAt.UTC().Format(time.RFC3339Nano)
}
