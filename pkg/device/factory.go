// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import "github.com/pv-scom/go-scom/pkg/property"

// Factory creates a Device for a discovered (kind, address) pair. The
// manager calls it once per newly-present address; callers that need a
// product-specific parameter catalogue (the bulk of which is a
// configuration concern, not part of this library) should register
// their own Factory via WithFactory instead of relying on the built-in
// one, which only ships the handful of objects needed to make a device
// usable out of the box (software version, a couple of measurements).
type Factory func(kind Kind, address uint32, bus Exchanger, reg *Registry) *Device

// DefaultFactory builds devices using the built-in minimal tables below.
func DefaultFactory(kind Kind, address uint32, bus Exchanger, reg *Registry) *Device {
	params, userInfo := builtinTables(kind)
	d := New(kind, address, params, userInfo, bus, reg)
	switch kind {
	case KindXtender:
		d.SoftVersionMSB, d.SoftVersionLSB = 3130, 3131
	case KindVarioTrack, KindVarioPower:
		d.SoftVersionMSB, d.SoftVersionLSB = 15077, 15078
	case KindBSP:
		d.SoftVersionMSB, d.SoftVersionLSB = 7037, 7038
	}
	return d
}

func builtinTables(kind Kind) (params, userInfo Table) {
	switch kind {
	case KindXtender:
		return Table{
				"battery_charge_reference_current": {Name: "battery_charge_reference_current", Number: 1138, Format: property.FormatFloat, HumanName: "Battery charge reference current"},
				"power_on_all_xtenders":            {Name: "power_on_all_xtenders", Number: 1415, Format: property.FormatBool, HumanName: "Power on all xtenders"},
			}, Table{
				"battery_voltage": {Name: "battery_voltage", Number: 3000, Format: property.FormatFloat, HumanName: "Battery voltage"},
				"battery_current": {Name: "battery_current", Number: 3005, Format: property.FormatFloat, HumanName: "Battery current"},
				"soc":             {Name: "soc", Number: 3007, Format: property.FormatFloat, HumanName: "State of charge"},
			}
	case KindVarioTrack, KindVarioPower:
		return Table{
				"grid_reference_current": {Name: "grid_reference_current", Number: 14073, Format: property.FormatFloat, HumanName: "Grid reference current"},
			}, Table{
				"battery_voltage": {Name: "battery_voltage", Number: 15000, Format: property.FormatFloat, HumanName: "Battery voltage"},
				"pv_voltage":      {Name: "pv_voltage", Number: 15004, Format: property.FormatFloat, HumanName: "PV generator voltage"},
			}
	case KindRCC:
		return Table{
				"language": {Name: "language", Number: 5000, Format: property.FormatEnum, HumanName: "Display language"},
			}, Table{}
	case KindBSP:
		return Table{
				"nominal_capacity": {Name: "nominal_capacity", Number: 6001, Format: property.FormatFloat, HumanName: "Nominal capacity"},
			}, Table{
				"state_of_charge": {Name: "state_of_charge", Number: 7002, Format: property.FormatFloat, HumanName: "State of charge"},
				"battery_voltage": {Name: "battery_voltage", Number: 7000, Format: property.FormatFloat, HumanName: "Battery voltage"},
			}
	default:
		return Table{}, Table{}
	}
}
