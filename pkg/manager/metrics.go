// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manager

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pv-scom/go-scom/pkg/device"
)

// Metrics exposes openmetrics gauges/counters describing bus health and
// device population. Callers register them with their own registry; see
// cmd/scomdiag/metric.go for a text-exposition example.
type Metrics struct {
	rxErrors       prometheus.Gauge
	devicesTracked *prometheus.GaugeVec
	connects       *prometheus.CounterVec
	disconnects    *prometheus.CounterVec
}

func newMetrics() *Metrics {
	return &Metrics{
		rxErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scom_transport_rx_errors",
			Help: "Cumulative count of malformed SCOM responses and serial read errors observed on the bus.",
		}),
		devicesTracked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scom_devices_tracked",
			Help: "Number of devices currently tracked per kind.",
		}, []string{"kind"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scom_device_connects_total",
			Help: "Total number of device-connected transitions observed, per kind.",
		}, []string{"kind"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scom_device_disconnects_total",
			Help: "Total number of device-disconnected transitions observed, per kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) setRxErrors(v int64) { m.rxErrors.Set(float64(v)) }

func (m *Metrics) setTracked(kind device.Kind, n int) {
	m.devicesTracked.WithLabelValues(string(kind)).Set(float64(n))
}

func (m *Metrics) deviceConnected(kind device.Kind) {
	m.connects.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) deviceDisconnected(kind device.Kind) {
	m.disconnects.WithLabelValues(string(kind)).Inc()
}

// Register adds every metric to reg, letting callers expose them
// alongside process/Go runtime metrics via promhttp or expfmt.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.rxErrors, m.devicesTracked, m.connects, m.disconnects} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Metrics returns the manager's Metrics so cmd/scomdiag (or any other
// caller) can register them with its own prometheus.Registry.
func (m *DeviceManager) Metrics() *Metrics { return m.metrics }
