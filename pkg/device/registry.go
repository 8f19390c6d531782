// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import "sync"

// Registry is a per-kind bookkeeping map from bus address to device,
// used for Count/Instances observability without itself owning the
// device. The DeviceManager holds the authoritative strong reference and
// is solely responsible for calling Remove when a device disconnects;
// Registry never removes entries on its own.
type Registry struct {
	mu     sync.RWMutex
	byKind map[Kind]map[uint32]*Device
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[Kind]map[uint32]*Device)}
}

// Add registers d under its kind and address. Re-adding the same address
// replaces the previous handle.
func (r *Registry) Add(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byKind[d.Kind]
	if !ok {
		m = make(map[uint32]*Device)
		r.byKind[d.Kind] = m
	}
	m[d.Address] = d
}

// Remove drops the handle for kind/address, if present.
func (r *Registry) Remove(kind Kind, address uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKind[kind], address)
}

// Count returns the number of tracked instances of kind.
func (r *Registry) Count(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKind[kind])
}

// Instances returns a snapshot slice of the currently tracked devices of
// kind.
func (r *Registry) Instances(kind Kind) []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.byKind[kind]))
	for _, d := range r.byKind[kind] {
		out = append(out, d)
	}
	return out
}
