// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport owns the serial connection to a SCOM bus: a single
// mutex serialises request/response exchanges, an append-only receive
// buffer survives across calls, and a monotonic error counter tracks bus
// health for the manager's health gate.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"

	"github.com/pv-scom/go-scom/pkg/frame"
)

var (
	ErrOpenFailed = errors.New("transport: failed to open serial port")
	ErrBusy       = errors.New("transport: exchange mutex acquisition timed out")
)

const (
	// DefaultBaud is the bus default used when a caller does not specify one.
	DefaultBaud = 38400
	// lockTimeout bounds how long WriteFrame waits to acquire exclusive
	// access to the port before giving up with ErrBusy.
	lockTimeout = 10 * time.Second
	// pollSlice is the granularity at which the receive buffer is polled
	// while waiting for a complete frame.
	pollSlice = 100 * time.Millisecond
)

// Port is the narrow interface SerialTransport drives; github.com/tarm/serial's
// *serial.Port implements it, and tests substitute an in-memory fake.
type Port interface {
	io.ReadWriter
	Close() error
}

// SerialTransport owns one physical (or faked) serial port. Exactly one
// request/response exchange may be in flight at a time.
type SerialTransport struct {
	mu       chan struct{} // 1-buffered: acts as a mutex with a timed acquire
	port     Port
	rxBuffer []byte
	rxErrors int64
}

// Open configures and opens the named serial port at baud with 8 data
// bits, even parity, one stop bit — the framing every SCOM device on
// the bus expects.
func Open(name string, baud int) (*SerialTransport, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	cfg := &serial.Config{
		Name:        name,
		Baud:        baud,
		Size:        8,
		Parity:      serial.ParityEven,
		StopBits:    serial.Stop1,
		ReadTimeout: pollSlice,
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	return NewWithPort(port), nil
}

// NewWithPort wraps an already-open Port, used directly by tests and by
// anything that wants to inject its own transport (e.g. a loopback fake).
func NewWithPort(port Port) *SerialTransport {
	t := &SerialTransport{
		mu:   make(chan struct{}, 1),
		port: port,
	}
	t.mu <- struct{}{}
	return t
}

// WriteFrame sends req and waits up to rxTimeout for a complete,
// checksum-valid response frame. It returns (nil, nil) on timeout or a
// malformed response — neither is fatal to the caller, matching the
// protocol's no-automatic-retry policy. ErrBusy is returned only if the
// exchange mutex itself could not be acquired within lockTimeout.
func (t *SerialTransport) WriteFrame(req *frame.Frame, rxTimeout time.Duration) (*frame.Frame, error) {
	select {
	case <-t.mu:
	case <-time.After(lockTimeout):
		return nil, ErrBusy
	}
	defer func() { t.mu <- struct{}{} }()

	if _, err := t.port.Write(req.Bytes()); err != nil {
		return nil, fmt.Errorf("transport: write: %w", err)
	}
	return t.readFrame(rxTimeout), nil
}

func (t *SerialTransport) readFrame(wait time.Duration) *frame.Frame {
	deadline := time.Now().Add(wait)
	readBuf := make([]byte, 256)

	for {
		n, err := t.port.Read(readBuf)
		if n > 0 {
			t.rxBuffer = append(t.rxBuffer, readBuf[:n]...)
		}
		if err != nil && err != io.EOF {
			atomic.AddInt64(&t.rxErrors, 1)
			return nil
		}

		if len(t.rxBuffer) >= frame.MinFrameSize {
			f, consumed, perr := frame.ParseStream(t.rxBuffer)
			if perr != nil {
				atomic.AddInt64(&t.rxErrors, 1)
				t.rxBuffer = nil
				return nil
			}
			if f != nil {
				t.rxBuffer = t.rxBuffer[consumed:]
				return f
			}
		}

		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(pollSlice)
	}
}

// RxErrors returns the monotonic count of malformed/unparsable responses
// and serial read errors observed since the transport was opened.
func (t *SerialTransport) RxErrors() int64 {
	return atomic.LoadInt64(&t.rxErrors)
}

// Reset clears the accumulated receive buffer, discarding any partial
// frame fragment.
func (t *SerialTransport) Reset() {
	t.rxBuffer = nil
}

// Close releases the underlying port.
func (t *SerialTransport) Close() error {
	return t.port.Close()
}
