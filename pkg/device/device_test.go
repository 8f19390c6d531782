package device

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/pv-scom/go-scom/pkg/frame"
	"github.com/pv-scom/go-scom/pkg/property"
)

// fakeBus answers every WriteFrame call by looking up the requested
// object id in responses and echoing back its value bytes, with the
// response/data-error flags set appropriately.
type fakeBus struct {
	responses map[uint32][]byte // objectID -> raw value bytes
	missing   map[uint32]bool   // objectID -> respond with data-error flag set
	calls     int
}

func (b *fakeBus) WriteFrame(req *frame.Frame, _ time.Duration) (*frame.Frame, error) {
	b.calls++
	data := req.Data()
	objectType := binary.LittleEndian.Uint16(data[2:4])
	objectID := binary.LittleEndian.Uint32(data[4:8])
	propertyID := binary.LittleEndian.Uint16(data[8:10])

	value, ok := b.responses[objectID]
	errorFlag := b.missing[objectID]
	if !ok && !errorFlag {
		return nil, nil
	}

	resp, err := frame.NewRequest(1, 1, uint16(10+len(value)))
	if err != nil {
		return nil, err
	}
	rd := resp.Data()
	flags := byte(0x02) // is_response
	if errorFlag {
		flags |= 0x01
	}
	rd[0] = flags
	rd[1] = 0
	binary.LittleEndian.PutUint16(rd[2:4], objectType)
	binary.LittleEndian.PutUint32(rd[4:8], objectID)
	binary.LittleEndian.PutUint16(rd[8:10], propertyID)
	copy(rd[10:], value)
	resp.SetDataChecksum()
	return resp, nil
}

func TestShadowStoreSemantics(t *testing.T) {
	bus := &fakeBus{responses: map[uint32][]byte{1138: property.EncodeFloat32(99)}}
	params := Table{"x": {Name: "x", Number: 1138, Format: property.FormatFloat}}
	d := New(KindXtender, 101, params, nil, bus, nil)

	if err := d.WriteParamByName("x", 42, property.IDUnsavedValueQSP); err != nil {
		t.Fatalf("WriteParamByName: %v", err)
	}

	callsBefore := bus.calls
	v, err := d.ReadParamByName("x", property.IDLast)
	if err != nil {
		t.Fatalf("ReadParamByName(LAST): %v", err)
	}
	if v != 42 {
		t.Fatalf("shadow read = %v, want 42", v)
	}
	if bus.calls != callsBefore {
		t.Fatalf("shadow-served read should not touch the bus, calls went %d -> %d", callsBefore, bus.calls)
	}

	v, err = d.ReadParamByName("x", property.IDValueQSP)
	if err != nil {
		t.Fatalf("ReadParamByName(VALUE_QSP): %v", err)
	}
	if v != 99 {
		t.Fatalf("bus read = %v, want 99 (the device's own value, not the shadow)", v)
	}
	if bus.calls != callsBefore+1 {
		t.Fatalf("VALUE_QSP read should always hit the bus")
	}
}

func TestShadowMissFallsBackWithoutCaching(t *testing.T) {
	bus := &fakeBus{responses: map[uint32][]byte{1138: property.EncodeFloat32(7)}}
	params := Table{"x": {Name: "x", Number: 1138, Format: property.FormatFloat}}
	d := New(KindXtender, 101, params, nil, bus, nil)

	v, err := d.ReadParamByName("x", property.IDLast)
	if err != nil {
		t.Fatalf("ReadParamByName: %v", err)
	}
	if v != 7 {
		t.Fatalf("fallback read = %v, want 7", v)
	}
	if _, ok := d.Shadow.Get("x"); ok {
		t.Fatalf("a VALUE_QSP fallback must not populate the shadow store")
	}
}

func TestSoftwareVersionDecoding(t *testing.T) {
	bus := &fakeBus{responses: map[uint32][]byte{
		3080: property.EncodeFloat32(0x0203),
		3081: property.EncodeFloat32(0x0405),
	}}
	d := New(KindXtender, 101, nil, nil, bus, nil)
	d.SoftVersionMSB = 3080
	d.SoftVersionLSB = 3081

	v := d.SoftwareVersion()
	if v != (Version{Major: 2, Minor: 4, Patch: 5}) {
		t.Fatalf("SoftwareVersion = %+v, want {2 4 5}", v)
	}
}

func TestSoftwareVersionReadFailureYieldsZero(t *testing.T) {
	bus := &fakeBus{responses: map[uint32][]byte{}}
	d := New(KindXtender, 101, nil, nil, bus, nil)
	d.SoftVersionMSB = 3080
	d.SoftVersionLSB = 3081

	if v := d.SoftwareVersion(); v != (Version{}) {
		t.Fatalf("SoftwareVersion on read failure = %+v, want zero value", v)
	}
}

func TestReadUserInfoDataErrorFlag(t *testing.T) {
	bus := &fakeBus{missing: map[uint32]bool{42: true}}
	d := New(KindBSP, 601, nil, nil, bus, nil)

	if _, err := d.ReadUserInfo(42); err == nil {
		t.Fatalf("expected ErrRead when the response carries the data-error flag")
	}
}

func TestRegistryCountAndInstances(t *testing.T) {
	reg := NewRegistry()
	bus := &fakeBus{}
	d1 := New(KindXtender, 101, nil, nil, bus, reg)
	d2 := New(KindXtender, 102, nil, nil, bus, reg)

	if got := reg.Count(KindXtender); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
	reg.Remove(KindXtender, d1.Address)
	if got := reg.Count(KindXtender); got != 1 {
		t.Fatalf("Count after Remove = %d, want 1", got)
	}
	instances := reg.Instances(KindXtender)
	if len(instances) != 1 || instances[0] != d2 {
		t.Fatalf("Instances = %v, want [d2]", instances)
	}
}

func TestCanonicalKind(t *testing.T) {
	if CanonicalKind("vario-power") != KindVarioPower {
		t.Fatalf("vario-power should canonicalize to %q", KindVarioPower)
	}
	if CanonicalKind("vario_track") != KindVarioTrack {
		t.Fatalf("vario_track should canonicalize to %q", KindVarioTrack)
	}
}
