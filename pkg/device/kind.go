// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"strings"

	"github.com/pv-scom/go-scom/pkg/property"
)

// Kind names a device family. The canonical form uses underscores;
// hyphenated spellings (vario-power, vario-track) are accepted at the
// boundary for backward compatibility with older configuration and
// logged fixtures, per the two spellings observed in the wild.
type Kind string

const (
	KindXtender    Kind = "xtender"
	KindCompact    Kind = "compact"
	KindVarioTrack Kind = "vario_track"
	KindVarioPower Kind = "vario_power"
	KindRCC        Kind = "rcc"
	KindBSP        Kind = "bsp"
)

// CanonicalKind maps a possibly-hyphenated kind tag to its canonical
// underscore form. Unknown tags are returned unchanged.
func CanonicalKind(tag string) Kind {
	return Kind(strings.ReplaceAll(strings.ToLower(tag), "-", "_"))
}

// ProbeSpec describes how the manager's discovery sweep decides whether
// an address is occupied by a device of a given kind.
type ProbeSpec struct {
	Kind             Kind
	ObjectType       uint16
	ObjectID         uint32
	PropertyID       uint16
	DefaultRangeLow  uint32
	DefaultRangeHigh uint32
}

// ProbeSpecs is the built-in strategy table for the kinds this module
// ships with. The probe object ids are fixed points of the protocol:
// xtender -> battery voltage (3000), vario_power/vario_track -> battery
// voltage (15000), rcc -> language parameter (5000), bsp -> state of
// charge (7002).
var ProbeSpecs = map[Kind]ProbeSpec{
	KindXtender: {
		Kind: KindXtender, ObjectType: property.ObjectTypeReadUserInfo, ObjectID: 3000,
		PropertyID: property.IDRead, DefaultRangeLow: 101, DefaultRangeHigh: 109,
	},
	KindVarioTrack: {
		Kind: KindVarioTrack, ObjectType: property.ObjectTypeReadUserInfo, ObjectID: 15000,
		PropertyID: property.IDRead, DefaultRangeLow: 301, DefaultRangeHigh: 315,
	},
	KindVarioPower: {
		Kind: KindVarioPower, ObjectType: property.ObjectTypeReadUserInfo, ObjectID: 15000,
		PropertyID: property.IDRead, DefaultRangeLow: 701, DefaultRangeHigh: 715,
	},
	KindRCC: {
		Kind: KindRCC, ObjectType: property.ObjectTypeParameter, ObjectID: 5000,
		PropertyID: property.IDRead, DefaultRangeLow: 501, DefaultRangeHigh: 509,
	},
	KindBSP: {
		Kind: KindBSP, ObjectType: property.ObjectTypeReadUserInfo, ObjectID: 7002,
		PropertyID: property.IDRead, DefaultRangeLow: 601, DefaultRangeHigh: 601,
	},
}
