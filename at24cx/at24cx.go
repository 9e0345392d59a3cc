// Package at24cx implements a driver for the Atmel/Microchip 24Cx family
// of I2C EEPROMs, from the 24C01 (128 B) up to the 24CM01 (128 KiB).
//
// The chips expose raw byte storage with two quirks the driver hides from
// the caller: writes wrap inside the chip's internal page buffer, so a
// write crossing a page boundary must be split into separate bus
// transactions, and the chip stops acknowledging its own address while it
// commits a page to non-volatile storage, so every transaction is followed
// by ack polling. On larger variants part of the device address selects a
// memory bank and carries high-order address bits.
package at24cx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/eeprom"
)

// ErrAddressOutOfBounds signals a requested range exceeding the chip
// capacity. Detected before any bus activity.
var ErrAddressOutOfBounds = errors.New("address out of bounds")

// ErrWriteTimeout signals that the chip did not re-acknowledge its address
// within the ack-polling budget after a write. Distinct from transport
// faults: the chip stayed busy longer than the datasheet bound.
var ErrWriteTimeout = errors.New("timeout waiting for write cycle to complete")

// The family datasheets specify a write cycle of ~5 ms worst case; 60
// probes spaced 100 µs apart add up to 6 ms of margin on top of the probe
// transactions themselves.
const (
	defaultPollAttempts = 60
	defaultPollInterval = 100 * time.Microsecond
)

// maximum in-chip address bytes plus the largest page in the family
const scratchSize = 2 + 256

// SleepFunc suspends the calling task for the given duration. Injected so
// the ack-polling loop can be exercised in tests without real time
// passing. Implementations must honor context cancellation.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Opts struct {
	ChipSelect     byte
	PollAttempts   int
	PollInterval   time.Duration
	Sleep          SleepFunc
	ProbeDummyByte bool
}

type Opt func(*Opts)

// WithChipSelect sets the state of the hardware address pins (A2..A0).
// Banked variants repurpose the low pins as bank bits; selecting a pin the
// variant does not expose is a configuration error reported by New.
func WithChipSelect(pins byte) Opt {
	return func(o *Opts) {
		o.ChipSelect = pins
	}
}

// WithPollAttempts overrides the ack-polling attempt budget.
func WithPollAttempts(attempts int) Opt {
	return func(o *Opts) {
		o.PollAttempts = attempts
	}
}

// WithPollInterval overrides the delay between ack-polling probes.
func WithPollInterval(interval time.Duration) Opt {
	return func(o *Opts) {
		o.PollInterval = interval
	}
}

// WithSleep substitutes the suspension primitive used between probes.
func WithSleep(sleep SleepFunc) Opt {
	return func(o *Opts) {
		o.Sleep = sleep
	}
}

// WithProbeDummyByte makes ack polling send a single 0x00 payload byte
// instead of a zero-length transfer. Some transports cannot report the
// ACK/NACK of an empty write; validate against the actual adapter.
func WithProbeDummyByte() Opt {
	return func(o *Opts) {
		o.ProbeDummyByte = true
	}
}

// AT24Cx drives one 24Cx chip over an I2C bus.
// Typical usage:
//
//	dev, err := at24cx.New(bus, at24cx.AT24C256)
//	buf := make([]byte, 16)
//	err = dev.Read(ctx, 0x100, buf)
//	err = dev.Write(ctx, 0x100, []byte("calibration"))
//
// The driver holds no state between calls apart from its immutable
// configuration and a scratch transfer buffer; a mutex serializes
// operations because the bus must be exclusively owned for the duration of
// one call. Errors from Write leave the target range's contents
// unspecified (the chip may hold some pages of the new data and not
// others); there is no rollback.
type AT24Cx struct {
	mx           sync.Mutex
	bus          eeprom.I2CBus
	variant      Variant
	geo          Geometry
	base         byte
	pollAttempts int
	pollInterval time.Duration
	sleep        SleepFunc
	probeLen     int
	scratch      [scratchSize]byte
}

// New creates a driver for the given chip variant on the given bus.
func New(bus eeprom.I2CBus, variant Variant, opts ...Opt) (*AT24Cx, error) {
	geo, ok := GeometryOf(variant)
	if !ok {
		return nil, fmt.Errorf("at24cx: unsupported variant %d", int(variant))
	}
	o := Opts{
		PollAttempts: defaultPollAttempts,
		PollInterval: defaultPollInterval,
		Sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ChipSelect&^geo.selectMask() != 0 {
		return nil, fmt.Errorf("at24cx: chip select %#03b not available on %s (mask %#03b)",
			o.ChipSelect, variant, geo.selectMask())
	}
	if o.PollAttempts < 1 {
		return nil, fmt.Errorf("at24cx: poll attempts must be positive, got %d", o.PollAttempts)
	}
	d := &AT24Cx{
		bus:          bus,
		variant:      variant,
		geo:          geo,
		base:         BaseAddress | o.ChipSelect,
		pollAttempts: o.PollAttempts,
		pollInterval: o.PollInterval,
		sleep:        o.Sleep,
	}
	if o.ProbeDummyByte {
		d.probeLen = 1
	}
	return d, nil
}

// Capacity returns the chip's total addressable storage in bytes.
func (d *AT24Cx) Capacity() uint32 {
	return d.geo.Capacity
}

// Variant returns the chip variant the driver was created for.
func (d *AT24Cx) Variant() Variant {
	return d.variant
}

// Read fills buffer with the chip contents starting at offset. The chip
// auto-increments its address pointer across page boundaries, so a single
// combined write-then-read transaction covers a whole bank; ranges
// spanning a bank boundary are split because the device address byte has
// to change.
func (d *AT24Cx) Read(ctx context.Context, offset uint32, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	p, err := planRead(d.geo, offset, len(buffer))
	if err != nil {
		return fmt.Errorf("at24cx: read of %d bytes at %#x: %w", len(buffer), offset, err)
	}
	consumed := 0
	for {
		s, ok := p.next()
		if !ok {
			return nil
		}
		pa, err := encodeAddress(d.geo, d.base, s.offset)
		if err != nil {
			return fmt.Errorf("at24cx: read at %#x: %w", s.offset, err)
		}
		err = d.bus.WriteReadAddr(ctx, pa.device, pa.mem[:pa.memLen], buffer[consumed:consumed+s.length])
		if err != nil {
			return fmt.Errorf("at24cx: read at %#x failed: %w", s.offset, err)
		}
		consumed += s.length
	}
}

// Write stores data starting at offset. The range is split into spans that
// fit the chip's page buffer (and a single bank on banked variants); each
// span is written in one bus transaction and ack-polled to completion
// before the next span starts, because the chip buffers only one in-flight
// page write. The operation fails fast on the first span error; callers
// must treat any error as leaving the written range indeterminate.
func (d *AT24Cx) Write(ctx context.Context, offset uint32, data []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	p, err := planWrite(d.geo, offset, len(data))
	if err != nil {
		return fmt.Errorf("at24cx: write of %d bytes at %#x: %w", len(data), offset, err)
	}
	consumed := 0
	for {
		s, ok := p.next()
		if !ok {
			return nil
		}
		pa, err := encodeAddress(d.geo, d.base, s.offset)
		if err != nil {
			return fmt.Errorf("at24cx: write at %#x: %w", s.offset, err)
		}
		n := copy(d.scratch[:], pa.mem[:pa.memLen])
		n += copy(d.scratch[n:], data[consumed:consumed+s.length])
		if err = d.bus.WriteToAddr(ctx, pa.device, d.scratch[:n]); err != nil {
			return fmt.Errorf("at24cx: page write at %#x failed: %w", s.offset, err)
		}
		if err = d.awaitWriteComplete(ctx, pa.device); err != nil {
			return err
		}
		consumed += s.length
	}
}

// awaitWriteComplete probes device until the chip acknowledges its address
// again, meaning the internal write cycle finished. A no-ack response is
// the chip reporting busy: suspend for the poll interval and retry within
// the attempt budget. Any other transport error is a bus fault and aborts
// immediately.
func (d *AT24Cx) awaitWriteComplete(ctx context.Context, device byte) error {
	probe := d.scratch[:d.probeLen]
	if d.probeLen > 0 {
		probe[0] = 0x00
	}
	for attempt := 1; ; attempt++ {
		err := d.bus.WriteToAddr(ctx, device, probe)
		if err == nil {
			return nil
		}
		if !errors.Is(err, eeprom.ErrNoAck) {
			return fmt.Errorf("at24cx: ack poll on %#x failed: %w", device, err)
		}
		if attempt >= d.pollAttempts {
			return fmt.Errorf("at24cx: device %#x: %w", device, ErrWriteTimeout)
		}
		if err = d.sleep(ctx, d.pollInterval); err != nil {
			return fmt.Errorf("at24cx: ack poll on %#x interrupted: %w", device, err)
		}
	}
}
