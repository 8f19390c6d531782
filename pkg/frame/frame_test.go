package frame

import (
	"encoding/hex"
	"strings"
	"testing"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("hex.DecodeString(%q): %v", s, err)
	}
	return b
}

func TestFromBytesRequestFixture(t *testing.T) {
	raw := hexBytes(t, "AA 00 01 00 00 00 65 00 00 00 0A 00 6F 71 00 01 01 00 B8 0B 00 00 01 00 C5 90")
	f, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if !f.IsValid() {
		t.Fatalf("expected fixture frame to verify its checksums")
	}
	if f.DataLength() != 10 {
		t.Fatalf("DataLength = %d, want 10", f.DataLength())
	}
	if !f.IsRequest() {
		t.Fatalf("expected request frame")
	}
	if _, err := f.ResponseValueSize(); err == nil {
		t.Fatalf("ResponseValueSize on a request frame should fail")
	}
}

func TestFromBytesResponseFixture(t *testing.T) {
	raw := hexBytes(t, "AA 22 65 00 00 00 01 00 00 00 0C 00 93 7B 03 01 01 00 B8 0B 00 00 05 00 02 00 CE 52")
	f, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if !f.ChecksumsValid() {
		t.Fatalf("expected fixture frame to verify its checksums")
	}
	if !f.IsResponse() {
		t.Fatalf("expected response frame")
	}
	// The service-flags byte of this fixture is 0x03: it is a response
	// carrying the data-error flag, so it fails the composite validity
	// check even though its checksums hold.
	if !f.IsDataErrorFlagSet() {
		t.Fatalf("data error flag should be set")
	}
	if f.IsValid() {
		t.Fatalf("a data-error response must not count as valid")
	}
	size, err := f.ResponseValueSize()
	if err != nil {
		t.Fatalf("ResponseValueSize: %v", err)
	}
	if size != 2 {
		t.Fatalf("ResponseValueSize = %d, want 2", size)
	}
	data := f.Data()
	value := data[len(data)-size:]
	if want := []byte{0x02, 0x00}; string(value) != string(want) {
		t.Fatalf("value = % X, want % X", value, want)
	}
}

func TestParseStreamRequestFixture(t *testing.T) {
	raw := hexBytes(t, "AA 00 01 00 00 00 65 00 00 00 0A 00 6F 71 00 01 01 00 B8 0B 00 00 01 00 C5 90")
	f, consumed, err := ParseStream(raw)
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	if consumed != len(raw) {
		t.Fatalf("consumed = %d, want %d", consumed, len(raw))
	}
	if !f.IsRequest() {
		t.Fatalf("expected request frame")
	}
	if _, err := f.ResponseValueSize(); err == nil {
		t.Fatalf("ResponseValueSize on a request frame should fail")
	}
}

func TestParseStreamResponseFixture(t *testing.T) {
	raw := hexBytes(t, "AA 22 65 00 00 00 01 00 00 00 0C 00 93 7B 03 01 01 00 B8 0B 00 00 05 00 02 00 CE 52")
	f, consumed, err := ParseStream(raw)
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	if consumed != len(raw) {
		t.Fatalf("consumed = %d, want %d", consumed, len(raw))
	}
	if !f.IsResponse() {
		t.Fatalf("expected response frame")
	}
	if !f.IsDataErrorFlagSet() {
		t.Fatalf("data error flag should be set")
	}
	size, err := f.ResponseValueSize()
	if err != nil {
		t.Fatalf("ResponseValueSize: %v", err)
	}
	if size != 2 {
		t.Fatalf("ResponseValueSize = %d, want 2", size)
	}
}

func TestParseStreamIncomplete(t *testing.T) {
	full := hexBytes(t, "AA 00 01 00 00 00 65 00 00 00 0A 00 6F 71 00 01 01 00 B8 0B 00 00 01 00 C5 90")
	for n := 0; n < len(full); n++ {
		f, consumed, err := ParseStream(full[:n])
		if f != nil || consumed != 0 || err != nil {
			t.Fatalf("ParseStream(%d bytes) = (%v, %d, %v), want (nil, 0, nil)", n, f, consumed, err)
		}
	}
}

func TestNewRequestRoundTrip(t *testing.T) {
	f, err := NewRequest(1, 101, 10)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if !f.IsValid() {
		t.Fatalf("freshly built frame should be valid")
	}

	parsed, consumed, err := ParseStream(f.Bytes())
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	if consumed != len(f.Bytes()) {
		t.Fatalf("consumed = %d, want %d", consumed, len(f.Bytes()))
	}
	if parsed.DataLength() != 10 {
		t.Fatalf("DataLength = %d, want 10", parsed.DataLength())
	}
}

func TestParseStreamInvalidChecksum(t *testing.T) {
	f, err := NewRequest(1, 101, 10)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	raw := append([]byte(nil), f.Bytes()...)
	raw[12] ^= 0xFF // corrupt header checksum

	if _, _, err := ParseStream(raw); err != ErrInvalid {
		t.Fatalf("ParseStream with corrupt checksum = %v, want ErrInvalid", err)
	}
}

func TestNewRequestBufferTooSmallNotPossible(t *testing.T) {
	// NewRequest always allocates exactly the right size; FromBytes is
	// where an under-sized caller-supplied buffer is rejected.
	if _, err := FromBytes(make([]byte, MinFrameSize-1)); err != ErrBufferTooSmall {
		t.Fatalf("FromBytes undersized = %v, want ErrBufferTooSmall", err)
	}
}
