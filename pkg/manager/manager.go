// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package manager implements the process-wide device manager: a
// background discovery loop that scans the bus for devices, tracks
// connect/disconnect transitions, fans out notifications to
// subscribers, and watches transport health.
package manager

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pv-scom/go-scom/pkg/device"
	"github.com/pv-scom/go-scom/pkg/frame"
	"github.com/pv-scom/go-scom/pkg/property"
	"github.com/pv-scom/go-scom/pkg/transport"
)

const probeRequestCapacity = 10

var (
	// ErrAlreadyExists is returned by Create when a DeviceManager instance
	// already occupies the process-wide singleton slot.
	ErrAlreadyExists = errors.New("manager: a DeviceManager instance already exists")

	instance atomic.Pointer[DeviceManager]

	// fatal is called when rx_errors crosses the unrecoverable-bus
	// threshold; it is a var so tests can observe the termination
	// instead of actually exiting the process.
	fatal = log.Fatalf
)

// Subscriber receives connect/disconnect notifications for the device
// kinds named in its Filter (or every kind, if Filter is empty/contains "all").
type Subscriber struct {
	OnConnected    func(d *device.Device)
	OnDisconnected func(d *device.Device)
	Filter         []device.Kind
}

func (s *Subscriber) matches(kind device.Kind) bool {
	if len(s.Filter) == 0 {
		return true
	}
	for _, k := range s.Filter {
		if k == kind || k == "all" {
			return true
		}
	}
	return false
}

// DeviceManager is the process-wide singleton orchestrator described by
// Config. Create it with Create, stop it with Destroy.
type DeviceManager struct {
	cfg      *Config
	bus      device.Exchanger
	closeBus func() error
	registry *device.Registry
	metrics  *Metrics

	mu          sync.Mutex
	tracked     map[device.Kind]map[uint32]*device.Device
	subscribers []*Subscriber

	rxWarned int32

	stop chan struct{}
	done chan struct{}
}

// Create opens the configured serial transport (CreateWithBus is the
// variant that takes an injected bus instead) and starts the background
// discovery worker. It fails with ErrAlreadyExists if a DeviceManager is
// already live.
func Create(cfg *Config) (*DeviceManager, error) {
	return createWithBus(cfg, nil)
}

// CreateWithBus is the injection point tests use to supply a fake
// device.Exchanger instead of opening a real serial port.
func CreateWithBus(cfg *Config, bus device.Exchanger) (*DeviceManager, error) {
	return createWithBus(cfg, bus)
}

func createWithBus(cfg *Config, bus device.Exchanger) (*DeviceManager, error) {
	m := &DeviceManager{
		cfg:      cfg,
		registry: device.NewRegistry(),
		metrics:  newMetrics(),
		tracked:  make(map[device.Kind]map[uint32]*device.Device),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if !instance.CompareAndSwap(nil, m) {
		return nil, ErrAlreadyExists
	}

	if bus != nil {
		m.bus = bus
	} else {
		st, err := transport.Open(cfg.Port, cfg.Baud)
		if err != nil {
			instance.CompareAndSwap(m, nil)
			return nil, err
		}
		m.bus = st
		m.closeBus = st.Close
	}

	for kind := range cfg.ScanRanges {
		m.tracked[kind] = make(map[uint32]*device.Device)
	}

	go m.run()
	return m, nil
}

// Destroy stops the discovery worker, closes the transport if this
// manager owns it, and clears the singleton slot so a new DeviceManager
// can be created.
func (m *DeviceManager) Destroy() {
	close(m.stop)
	<-m.done
	if m.closeBus != nil {
		m.closeBus()
	}
	instance.CompareAndSwap(m, nil)
}

// Subscribe registers sub and immediately, synchronously replays
// on_connected for every device currently tracked that matches its
// filter.
func (m *DeviceManager) Subscribe(sub *Subscriber) {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, sub)
	var replay []*device.Device
	for kind, byAddr := range m.tracked {
		if !sub.matches(kind) {
			continue
		}
		for _, d := range byAddr {
			replay = append(replay, d)
		}
	}
	m.mu.Unlock()

	for _, d := range replay {
		if sub.OnConnected != nil {
			sub.OnConnected(d)
		}
	}
}

// Unsubscribe removes sub by identity. It reports whether sub was found.
func (m *DeviceManager) Unsubscribe(sub *Subscriber) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subscribers {
		if s == sub {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// Registry exposes the per-kind instance bookkeeping map.
func (m *DeviceManager) Registry() *device.Registry { return m.registry }

const workerName = "scom-device-manager"

func (m *DeviceManager) run() {
	defer close(m.done)

	if mon := m.cfg.Monitor; mon != nil {
		mon.WorkerStarted(workerName)
		defer mon.WorkerStopped(workerName)
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	nextSweep := time.Now()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			if now.Before(nextSweep) {
				continue
			}
			m.sweep()
			m.checkHealth()
			nextSweep = now.Add(m.cfg.ControlInterval)
		}
	}
}

func (m *DeviceManager) sweep() {
	for kind, rng := range m.cfg.ScanRanges {
		spec, ok := device.ProbeSpecs[kind]
		if !ok {
			continue
		}
		present := m.probeRange(spec, rng)
		m.reconcile(kind, present)
	}
}

func (m *DeviceManager) probeRange(spec device.ProbeSpec, rng ScanRange) map[uint32]bool {
	present := make(map[uint32]bool)
	for addr := rng.Start; addr <= rng.Stop; addr++ {
		if m.probeOne(spec, addr) {
			present[addr] = true
		}
	}
	return present
}

func (m *DeviceManager) probeOne(spec device.ProbeSpec, addr uint32) bool {
	req, err := frame.NewRequest(1, addr, probeRequestCapacity)
	if err != nil {
		return false
	}
	if err := property.SetObjectRead(req, spec.ObjectType, spec.ObjectID, spec.PropertyID); err != nil {
		return false
	}
	resp, err := m.bus.WriteFrame(req, 500*time.Millisecond)
	if err != nil || resp == nil {
		return false
	}
	return !resp.IsDataErrorFlagSet()
}

func (m *DeviceManager) reconcile(kind device.Kind, present map[uint32]bool) {
	m.mu.Lock()
	tracked := m.tracked[kind]

	var connected, disconnected []*device.Device
	for addr := range present {
		if _, ok := tracked[addr]; ok {
			continue
		}
		factory := m.cfg.Factory
		if factory == nil {
			factory = device.DefaultFactory
		}
		d := factory(kind, addr, m.bus, m.registry)
		tracked[addr] = d
		connected = append(connected, d)
	}
	for addr, d := range tracked {
		if !present[addr] {
			delete(tracked, addr)
			m.registry.Remove(kind, addr)
			disconnected = append(disconnected, d)
		}
	}
	subs := append([]*Subscriber(nil), m.subscribers...)
	m.metrics.setTracked(kind, len(tracked))
	m.mu.Unlock()

	for _, d := range connected {
		m.metrics.deviceConnected(kind)
		for _, s := range subs {
			if s.matches(kind) && s.OnConnected != nil {
				s.OnConnected(d)
			}
		}
	}
	for _, d := range disconnected {
		m.metrics.deviceDisconnected(kind)
		for _, s := range subs {
			if s.matches(kind) && s.OnDisconnected != nil {
				s.OnDisconnected(d)
			}
		}
	}
}

// rxErrorsReporter is satisfied by *transport.SerialTransport; kept
// narrow so a test bus without an error counter still compiles.
type rxErrorsReporter interface {
	RxErrors() int64
}

func (m *DeviceManager) checkHealth() {
	reporter, ok := m.bus.(rxErrorsReporter)
	if !ok {
		return
	}
	errs := reporter.RxErrors()
	m.metrics.setRxErrors(errs)

	if errs > 50 && atomic.CompareAndSwapInt32(&m.rxWarned, 0, 1) {
		log.Printf("critical: SCOM bus no longer responding (rx_errors=%d)", errs)
	}
	if errs > 100 {
		fatal("SCOM bus no longer responding (rx_errors=%d)", errs)
	}
}

