// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import "sync"

// ShadowStore caches the last value written with property id
// UNSAVED_VALUE_QSP, keyed by parameter name rather than wire object id
// so it stays decoupled from the protocol layer. Reads for LAST or
// UNSAVED_VALUE_QSP consult the shadow first; a miss falls back to a bus
// read that is deliberately not cached.
type ShadowStore struct {
	mu     sync.RWMutex
	values map[string]float64
}

// NewShadowStore returns an empty store.
func NewShadowStore() *ShadowStore {
	return &ShadowStore{values: make(map[string]float64)}
}

// Put records value as the last-written value for name.
func (s *ShadowStore) Put(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Get returns the cached value for name and whether it was present.
func (s *ShadowStore) Get(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}
