package main

import (
	"log"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/pv-scom/go-scom/pkg/device"
	"github.com/pv-scom/go-scom/pkg/manager"
)

func outputMetrics(m *manager.DeviceManager, found []*device.Device) {
	reg := prometheus.NewPedanticRegistry()
	if err := m.Metrics().Register(reg); err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	mDeviceInfo := prometheus.NewDesc(
		"scom_device_info",
		"Info metric for a device currently tracked on the bus",
		[]string{"address", "kind", "version"}, nil,
	)
	mc := &metricCollector{}
	for _, d := range found {
		v := d.SoftwareVersion()
		mc.m = append(mc.m, prometheus.MustNewConstMetric(mDeviceInfo, prometheus.GaugeValue, 1,
			addrLabel(d), string(d.Kind), versionLabel(v)))
	}
	reg.MustRegister(mc)

	mfs, err := reg.Gather()
	if err != nil {
		log.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			log.Fatalf("Failed to serialize metrics: %v", err)
		}
	}
}

type metricCollector struct {
	m []prometheus.Metric
}

func (mc *metricCollector) Collect(c chan<- prometheus.Metric) {
	for _, m := range mc.m {
		c <- m
	}
}

func (mc *metricCollector) Describe(c chan<- *prometheus.Desc) {}

func addrLabel(d *device.Device) string {
	return strconv.Itoa(int(d.Address))
}

func versionLabel(v device.Version) string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
}
