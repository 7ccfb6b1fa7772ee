package device

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Logger defines the logging interface used by the Directory.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Source fetches the full device list from the gateway.
type Source interface {
	ListDevices(ctx context.Context) ([]Device, error)
}

// Directory caches the gateway's device list for the lifetime of the process.
//
// The list is fetched on first use. Concurrent first readers share a single
// fetch. A failed or empty fetch is not cached, so the next read tries again.
// Once populated the cache is read-only until Invalidate is called.
//
// All public methods are thread-safe.
type Directory struct {
	src    Source
	group  singleflight.Group
	logger Logger

	mu         sync.RWMutex // Protects fields below
	devices    []Device
	loaded     bool
	generation uint64
}

// NewDirectory creates a Directory backed by src.
func NewDirectory(src Source) *Directory {
	return &Directory{
		src:    src,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the directory.
func (d *Directory) SetLogger(logger Logger) {
	d.logger = logger
}

// Devices returns the cached device list in gateway order, fetching it first
// if needed. The returned slice is a copy.
//
// Returns ErrDirectoryUnavailable when the fetch fails or yields no devices.
func (d *Directory) Devices(ctx context.Context) ([]Device, error) {
	d.mu.RLock()
	if d.loaded {
		out := cloneAll(d.devices)
		d.mu.RUnlock()
		return out, nil
	}
	gen := d.generation
	d.mu.RUnlock()

	// The flight outlives any single caller, so it runs detached and is
	// bounded by the transport timeout. Each caller still honours its own ctx.
	flight := context.WithoutCancel(ctx)
	ch := d.group.DoChan("devices", func() (any, error) {
		return d.fetch(flight, gen)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			d.logger.Debug("device fetch shared with concurrent caller")
		}
		return cloneAll(res.Val.([]Device)), nil
	}
}

// fetch loads the list from the source and stores it unless the cache was
// invalidated while the request was in flight.
func (d *Directory) fetch(ctx context.Context, gen uint64) ([]Device, error) {
	// A previous flight may have filled the cache since the caller looked.
	d.mu.RLock()
	if d.loaded {
		devices := d.devices
		d.mu.RUnlock()
		return devices, nil
	}
	d.mu.RUnlock()

	devices, err := d.src.ListDevices(ctx)
	if err != nil {
		d.logger.Error("fetching device list failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	if len(devices) == 0 {
		d.logger.Warn("gateway returned no devices")
		return nil, fmt.Errorf("%w: no devices returned", ErrDirectoryUnavailable)
	}

	d.mu.Lock()
	if d.generation == gen {
		d.devices = cloneAll(devices)
		d.loaded = true
	}
	d.mu.Unlock()

	d.logger.Info("device directory loaded", "count", len(devices))
	return devices, nil
}

// First returns the first n devices in directory order. When n exceeds the
// directory size every device is returned.
func (d *Directory) First(ctx context.Context, n int) ([]Device, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, n)
	}
	devices, err := d.Devices(ctx)
	if err != nil {
		return nil, err
	}
	if n < len(devices) {
		devices = devices[:n]
	}
	return devices, nil
}

// Get returns the device with the given ID.
func (d *Directory) Get(ctx context.Context, id string) (Device, error) {
	devices, err := d.Devices(ctx)
	if err != nil {
		return Device{}, err
	}
	for _, dev := range devices {
		if dev.ID == id {
			return dev, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// Invalidate drops the cached list so the next read fetches again.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.devices = nil
	d.loaded = false
	d.generation++
	d.mu.Unlock()
	d.group.Forget("devices")

	d.logger.Debug("device directory invalidated")
}

// Refresh invalidates the cache and fetches the list again.
func (d *Directory) Refresh(ctx context.Context) ([]Device, error) {
	d.Invalidate()
	return d.Devices(ctx)
}

// Len returns the number of cached devices without fetching.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.devices)
}

// Loaded reports whether the cache currently holds a device list.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

func cloneAll(devices []Device) []Device {
	out := make([]Device, len(devices))
	for i := range devices {
		out[i] = devices[i].Clone()
	}
	return out
}
