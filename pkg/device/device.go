// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device models a single SCOM device at a bus address: its
// parameter/user-info tables, its shadow store for unsaved writes, and
// the typed read/write accessors that hide the wire protocol.
package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/pv-scom/go-scom/pkg/frame"
	"github.com/pv-scom/go-scom/pkg/property"
)

var (
	ErrRead  = errors.New("device: read failed")
	ErrWrite = errors.New("device: write failed")
)

// Exchanger is the narrow dependency devices have on the bus; satisfied
// by *transport.SerialTransport; narrowed here so device tests don't need
// a real or fake serial port.
type Exchanger interface {
	WriteFrame(req *frame.Frame, rxTimeout time.Duration) (*frame.Frame, error)
}

// ParamInfo is a static descriptor of a named parameter or user-info
// object: its wire id, wire format, and a default value to fall back to.
type ParamInfo struct {
	Name      string
	Number    uint32
	Format    property.Format
	Default   float64
	HumanName string
}

// Table is keyed by short parameter name.
type Table map[string]ParamInfo

// Version is the {major, minor, patch} software version triple.
type Version struct {
	Major, Minor, Patch int
}

// Device is identified by (kind, bus address) and holds a reference to
// its parameter/user-info tables and shadow store. It is a thin,
// data-described strategy rather than a type hierarchy: callers
// distinguish behavior, if any, by inspecting Kind.
type Device struct {
	Kind    Kind
	Address uint32

	Params   Table
	UserInfo Table
	Shadow   *ShadowStore

	bus Exchanger

	// SoftVersionMSB/LSB name the user-info ids read by SoftwareVersion.
	// Zero means the kind does not publish a composite version.
	SoftVersionMSB uint32
	SoftVersionLSB uint32
}

// New constructs a device bound to bus, registering it in reg under its
// kind and address. The caller retains the returned *Device as the
// authoritative strong reference.
func New(kind Kind, address uint32, params, userInfo Table, bus Exchanger, reg *Registry) *Device {
	d := &Device{
		Kind:     kind,
		Address:  address,
		Params:   params,
		UserInfo: userInfo,
		Shadow:   NewShadowStore(),
		bus:      bus,
	}
	if reg != nil {
		reg.Add(d)
	}
	return d
}

const defaultRequestCapacity = 99

// ReadParameter reads a parameter object and returns the raw value
// bytes.
func (d *Device) ReadParameter(paramID uint32, propertyID uint16) ([]byte, error) {
	return d.readObject(property.ObjectTypeParameter, paramID, propertyID)
}

// WriteParameter writes value (already formatted per format) to a
// parameter object and returns the echoed value bytes from the
// response.
func (d *Device) WriteParameter(paramID uint32, value []byte, format property.Format, propertyID uint16) ([]byte, error) {
	req, err := frame.NewRequest(1, d.Address, defaultRequestCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := property.SetObjectWrite(req, property.ObjectTypeParameter, paramID, propertyID, value, format); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	resp, err := d.bus.WriteFrame(req, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no response", ErrWrite)
	}
	if resp.IsDataErrorFlagSet() {
		return nil, fmt.Errorf("%w: response carries data-error flag", ErrWrite)
	}
	return property.ExtractValue(resp)
}

// ReadUserInfo reads a read-only measurement object.
func (d *Device) ReadUserInfo(userInfoID uint32) ([]byte, error) {
	return d.readObject(property.ObjectTypeReadUserInfo, userInfoID, property.IDRead)
}

func (d *Device) readObject(objectType uint16, objectID uint32, propertyID uint16) ([]byte, error) {
	req, err := frame.NewRequest(1, d.Address, defaultRequestCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	if err := property.SetObjectRead(req, objectType, objectID, propertyID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	resp, err := d.bus.WriteFrame(req, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no response", ErrRead)
	}
	if resp.IsDataErrorFlagSet() {
		return nil, fmt.Errorf("%w: response carries data-error flag", ErrRead)
	}
	return property.ExtractValue(resp)
}

// ReadParamByName reads a table-described parameter, consulting the
// shadow store first for LAST/UNSAVED_VALUE_QSP and decoding the result
// per the parameter's declared format.
func (d *Device) ReadParamByName(name string, propertyID uint16) (float64, error) {
	info, ok := d.Params[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown parameter %q", ErrRead, name)
	}

	if propertyID == property.IDLast || propertyID == property.IDUnsavedValueQSP {
		if v, ok := d.Shadow.Get(name); ok {
			return v, nil
		}
		propertyID = property.IDValueQSP
	}

	raw, err := d.ReadParameter(info.Number, propertyID)
	if err != nil {
		return info.Default, err
	}
	return property.DecodeValue(raw, info.Format)
}

// WriteParamByName writes a table-described parameter by its short
// name. When propertyID is UNSAVED_VALUE_QSP, a successful write is
// mirrored into the shadow store.
func (d *Device) WriteParamByName(name string, value float64, propertyID uint16) error {
	info, ok := d.Params[name]
	if !ok {
		return fmt.Errorf("%w: unknown parameter %q", ErrWrite, name)
	}

	encoded, err := encodeValue(value, info.Format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	if _, err := d.WriteParameter(info.Number, encoded, info.Format, propertyID); err != nil {
		return err
	}

	if propertyID == property.IDUnsavedValueQSP {
		d.Shadow.Put(name, value)
	}
	return nil
}

func encodeValue(value float64, format property.Format) ([]byte, error) {
	switch format {
	case property.FormatFloat:
		return property.EncodeFloat32(float32(value)), nil
	case property.FormatInt32, property.FormatSignal:
		return property.EncodeUint32(uint32(value)), nil
	case property.FormatByte, property.FormatBool:
		return []byte{byte(uint32(value))}, nil
	default:
		return nil, fmt.Errorf("device: format %v is not writable from a float64", format)
	}
}

// SoftwareVersion performs the composite read described for devices
// that publish soft_version_msb/soft_version_lsb as user-info floats:
// major = msb>>8, minor = lsb>>8, patch = lsb&0xFF. Any read failure
// yields the zero Version rather than propagating the error, matching
// the documented fallback behavior for a best-effort version probe.
func (d *Device) SoftwareVersion() Version {
	if d.SoftVersionMSB == 0 && d.SoftVersionLSB == 0 {
		return Version{}
	}

	msbRaw, err := d.ReadUserInfo(d.SoftVersionMSB)
	if err != nil {
		return Version{}
	}
	lsbRaw, err := d.ReadUserInfo(d.SoftVersionLSB)
	if err != nil {
		return Version{}
	}

	msbF, err := property.DecodeValue(msbRaw, property.FormatFloat)
	if err != nil {
		return Version{}
	}
	lsbF, err := property.DecodeValue(lsbRaw, property.FormatFloat)
	if err != nil {
		return Version{}
	}

	msb := int(msbF)
	lsb := int(lsbF)
	return Version{
		Major: msb >> 8,
		Minor: lsb >> 8,
		Patch: lsb & 0xFF,
	}
}
