// Package validate rejects events that are structurally sound but
// semantically wrong: unknown devices, missing fields, values outside
// plausible physical ranges. Rejections are permanent failures.
package validate

import (
	"sync"
	"time"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/pkg/cache"
)

// Device describes a registered field device.
type Device struct {
	DeviceID string
	Tenant   string
	Tags     map[string]string
	Online   bool
	LastSeen time.Time
}

// DeviceRegistry resolves device legitimacy and tenancy.
type DeviceRegistry interface {
	// Lookup returns the device record, or ok=false for unknown devices.
	Lookup(deviceID string) (Device, bool)
}

// LivenessTracker is implemented by registries that track device activity.
// The validator touches the registry on every accepted event.
type LivenessTracker interface {
	Touch(deviceID string, at time.Time)
}

// StaticRegistry is an in-memory registry seeded from configuration, with
// liveness tracking updated as events arrive.
type StaticRegistry struct {
	mu      sync.RWMutex
	devices map[string]*Device

	// devices not seen within this window report Online=false
	livenessWindow time.Duration
}

// NewStaticRegistry creates a registry. A zero liveness window disables
// liveness tracking (devices always report online once seen).
func NewStaticRegistry(livenessWindow time.Duration) *StaticRegistry {
	return &StaticRegistry{
		devices:        make(map[string]*Device),
		livenessWindow: livenessWindow,
	}
}

// Register adds or replaces a device.
func (r *StaticRegistry) Register(d Device) error {
	if d.DeviceID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "StaticRegistry", "Register", "deviceId required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := d
	r.devices[d.DeviceID] = &copied
	return nil
}

// Lookup implements DeviceRegistry.
func (r *StaticRegistry) Lookup(deviceID string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return Device{}, false
	}

	out := *d
	if r.livenessWindow > 0 && !d.LastSeen.IsZero() {
		out.Online = time.Since(d.LastSeen) <= r.livenessWindow
	}
	return out, true
}

// Touch records device activity for liveness tracking. Unknown devices are
// ignored.
func (r *StaticRegistry) Touch(deviceID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.devices[deviceID]; ok {
		if at.After(d.LastSeen) {
			d.LastSeen = at
		}
		d.Online = true
	}
}

// ActiveDevices lists devices currently considered online.
func (r *StaticRegistry) ActiveDevices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []Device
	for _, d := range r.devices {
		out := *d
		if r.livenessWindow > 0 && !d.LastSeen.IsZero() {
			out.Online = time.Since(d.LastSeen) <= r.livenessWindow
		}
		if out.Online {
			active = append(active, out)
		}
	}
	return active
}

// CachedRegistry decorates a slow registry with an LRU cache. Negative
// lookups are not cached so newly provisioned devices are picked up on the
// next event.
type CachedRegistry struct {
	inner DeviceRegistry
	cache *cache.LRUCache[Device]
}

// NewCachedRegistry wraps a registry with a cache of at most maxSize
// entries.
func NewCachedRegistry(inner DeviceRegistry, maxSize int) (*CachedRegistry, error) {
	c, err := cache.NewLRU[Device](maxSize)
	if err != nil {
		return nil, errors.WrapInvalid(err, "CachedRegistry", "NewCachedRegistry", "create cache")
	}
	return &CachedRegistry{inner: inner, cache: c}, nil
}

// Lookup implements DeviceRegistry.
func (r *CachedRegistry) Lookup(deviceID string) (Device, bool) {
	if d, ok := r.cache.Get(deviceID); ok {
		return d, true
	}

	d, ok := r.inner.Lookup(deviceID)
	if !ok {
		return Device{}, false
	}
	_, _ = r.cache.Set(deviceID, d)
	return d, true
}

// Touch forwards liveness updates to the wrapped registry. Cached Device
// values are not invalidated; tenancy and tags do not change on activity.
func (r *CachedRegistry) Touch(deviceID string, at time.Time) {
	if lt, ok := r.inner.(LivenessTracker); ok {
		lt.Touch(deviceID, at)
	}
}

// Stats exposes cache statistics for tests and introspection.
func (r *CachedRegistry) Stats() *cache.Statistics { return r.cache.Stats() }
