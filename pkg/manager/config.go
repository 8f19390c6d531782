// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manager

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/pv-scom/go-scom/pkg/device"
)

// ScanRange is an inclusive [start, stop] bus-address range to probe for
// a device kind.
type ScanRange struct {
	Start, Stop uint32
}

// Config is the in-process construction surface for Create. Build one
// with functional options, or load it from file/env/flags with
// ConfigFromViper.
type Config struct {
	// Port and Baud describe the serial line Create opens. CreateWithBus
	// takes an already-built bus instead and ignores Port/Baud — the
	// injection point tests use.
	Port string
	Baud int

	ScanRanges      map[device.Kind]ScanRange
	ControlInterval time.Duration

	Factory device.Factory

	// Monitor, if set, is told when the discovery worker starts and
	// stops, so a supervising host can watch its liveness.
	Monitor WorkerMonitor
}

// WorkerMonitor receives the background discovery worker's lifecycle
// transitions.
type WorkerMonitor interface {
	WorkerStarted(name string)
	WorkerStopped(name string)
}

// Opt mutates a Config being built (the functional-options pattern).
type Opt func(*Config)

// WithPort sets the serial device path.
func WithPort(name string) Opt { return func(c *Config) { c.Port = name } }

// WithBaud sets the serial baud rate.
func WithBaud(baud int) Opt { return func(c *Config) { c.Baud = baud } }

// WithScanRange registers (or overrides) the address range probed for kind.
func WithScanRange(kind device.Kind, start, stop uint32) Opt {
	return func(c *Config) {
		if c.ScanRanges == nil {
			c.ScanRanges = make(map[device.Kind]ScanRange)
		}
		c.ScanRanges[kind] = ScanRange{Start: start, Stop: stop}
	}
}

// WithControlInterval sets the sleep between discovery sweeps.
func WithControlInterval(d time.Duration) Opt { return func(c *Config) { c.ControlInterval = d } }

// WithFactory overrides the device construction strategy.
func WithFactory(f device.Factory) Opt { return func(c *Config) { c.Factory = f } }

// WithWorkerMonitor registers a liveness observer for the discovery worker.
func WithWorkerMonitor(m WorkerMonitor) Opt { return func(c *Config) { c.Monitor = m } }

// DefaultControlInterval is used when a Config does not set one.
const DefaultControlInterval = 5 * time.Second

// NewConfig builds a Config with the built-in default scan ranges (taken
// from device.ProbeSpecs) and DefaultControlInterval, then applies opts.
func NewConfig(opts ...Opt) *Config {
	c := &Config{
		Baud:            0, // transport.Open substitutes transport.DefaultBaud
		ControlInterval: DefaultControlInterval,
		Factory:         device.DefaultFactory,
		ScanRanges:      make(map[device.Kind]ScanRange),
	}
	for kind, spec := range device.ProbeSpecs {
		c.ScanRanges[kind] = ScanRange{Start: spec.DefaultRangeLow, Stop: spec.DefaultRangeHigh}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfigFromEnv applies SCOM_INTERFACE/SCOM_BAUDRATE on top of cfg,
// so a bare environment can point the manager at a bus without a
// config file.
func ConfigFromEnv(cfg *Config) {
	if v := os.Getenv("SCOM_INTERFACE"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("SCOM_BAUDRATE"); v != "" {
		var baud int
		if _, err := fmt.Sscanf(v, "%d", &baud); err == nil {
			cfg.Baud = baud
		}
	}
}

// ConfigFromViper reads a nested transport/scan/control_interval
// configuration surface via github.com/spf13/viper: environment
// variables, flags already bound to v, and any config file v was told
// to read. Keys are transport.port, transport.baud, scan.<kind> =
// [start, stop], control_interval (seconds).
func ConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg := NewConfig()

	if port := v.GetString("transport.port"); port != "" {
		cfg.Port = port
	}
	if baud := v.GetInt("transport.baud"); baud != 0 {
		cfg.Baud = baud
	}
	if secs := v.GetInt("control_interval"); secs != 0 {
		cfg.ControlInterval = time.Duration(secs) * time.Second
	}

	scan := v.GetStringMap("scan")
	for kindName := range scan {
		rng := v.GetIntSlice(fmt.Sprintf("scan.%s", kindName))
		if len(rng) != 2 {
			return nil, fmt.Errorf("manager: scan.%s must be a [start, stop] pair, got %v", kindName, rng)
		}
		cfg.ScanRanges[device.CanonicalKind(kindName)] = ScanRange{
			Start: uint32(rng[0]),
			Stop:  uint32(rng[1]),
		}
	}

	ConfigFromEnv(cfg)
	return cfg, nil
}
