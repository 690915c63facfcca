// Package hwaccel picks an optional hardware decoding backend for a codec
// and commits the pixel format that backend decodes into.
//
// The committed format lives in the Negotiation value and is handed to the
// decode engine's format callback through a closure, so every decoder has
// its own state. Negotiate itself is serialized process wide because device
// creation in the engine is not documented as safe to run concurrently.
package hwaccel

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Backend is one acceleration capability a codec advertises.
type Backend[F comparable] struct {
	Name        string
	PixelFormat F
	// DeviceContext reports support for decoding through a device context.
	DeviceContext bool
}

// Disabled as a preferred backend name turns negotiation off.
const Disabled = "none"

// Negotiation is a committed device/pixel-format pair. It is immutable for
// the lifetime of the decoder it was negotiated for.
type Negotiation[F comparable, D any] struct {
	Backend Backend[F]
	Device  D
}

var mu sync.Mutex

// Negotiate walks backends in priority order and opens a device for the
// first one that advertises device-context support and opens successfully.
// When nothing can be opened it returns nil: the caller decodes in software.
func Negotiate[F comparable, D any](backends []Backend[F], open func(Backend[F]) (D, error), log *slog.Logger) *Negotiation[F, D] {
	mu.Lock()
	defer mu.Unlock()

	if log == nil {
		log = slog.Default()
	}

	for _, b := range backends {
		if !b.DeviceContext {
			continue
		}

		d, err := open(b)
		if err != nil {
			log.Debug("hardware backend unavailable", "backend", b.Name, "error", err)
			continue
		}

		log.Info("hardware decoding enabled", "backend", b.Name)
		return &Negotiation[F, D]{Backend: b, Device: d}
	}

	log.Debug("no hardware backend usable, decoding in software")
	return nil
}

// Prefer reorders backends according to a configured name. An empty name
// keeps the engine's order, Disabled removes every backend, and any other
// name is moved to the front. Matching is case insensitive.
func Prefer[F comparable](backends []Backend[F], name string) ([]Backend[F], error) {
	switch name = strings.ToLower(strings.TrimSpace(name)); name {
	case "":
		return backends, nil
	case Disabled:
		return nil, nil
	}

	out := make([]Backend[F], 0, len(backends))
	found := false
	for _, b := range backends {
		if strings.ToLower(b.Name) == name {
			out = append([]Backend[F]{b}, out...)
			found = true
			continue
		}
		out = append(out, b)
	}
	if !found {
		return nil, fmt.Errorf("hwaccel: backend %q not supported by codec", name)
	}
	return out, nil
}

// Own hands the committed device to add, wrapped in release, so it is
// freed together with everything else the decoder allocates. A nil
// Negotiation owns nothing.
func (n *Negotiation[F, D]) Own(add func(func()), release func(D)) {
	if n == nil {
		return
	}
	d := n.Device
	add(func() { release(d) })
}

// Resolve is the pixel-format resolution callback: it selects the committed
// format among the candidates the engine offers, or fails.
func (n *Negotiation[F, D]) Resolve(candidates []F) (F, bool) {
	if n != nil {
		for _, f := range candidates {
			if f == n.Backend.PixelFormat {
				return f, true
			}
		}
	}
	var zero F
	return zero, false
}

// OnDevice reports whether a frame in format f sits in device memory and
// has to be transferred to the host first. A nil Negotiation is software
// decoding, where nothing is on the device.
func (n *Negotiation[F, D]) OnDevice(f F) bool {
	return n != nil && f == n.Backend.PixelFormat
}
