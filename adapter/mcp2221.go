package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/cmd/eeprom/console"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// HID command codes of the MCP2221 I2C engine.
const (
	cmdStatus        = 0x10
	cmdGetReadData   = 0x40
	cmdWriteData     = 0x90 // write with stop condition
	cmdReadData      = 0x91
	cmdWriteDataNoSt = 0x94 // write without stop, keeps the bus for a read
)

// Engine state machine value reported in the status response. Anything
// other than idle means a transfer is still in flight or has been aborted.
const i2cStateIdle = 0x00

// cancel flag for the status/set parameters command
const i2cCancelTransfer = 0x10

// number of status polls while waiting for the engine to finish a transfer
const engineRetries = 5

var _ eeprom.I2CBus = &MCP2221{}

// MCP2221 drives the Microchip MCP2221 USB-to-I2C bridge over USB HID.
// The dongle executes I2C transfers asynchronously: a command only queues
// the transfer, and its outcome (done, bus busy, slave NACK) has to be
// read back from the status register. A slave NACK is surfaced as
// eeprom.ErrNoAck after cancelling the aborted transfer, so that EEPROM
// ack polling can keep probing the device.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
}

type MCP2221Status struct {
	I2CState               byte   `yaml:"i2c_state"`
	NACKReceived           bool   `yaml:"nack_received"`
	I2CDataBufferCounter   int    `yaml:"data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"speed_divider"`
	I2CTimeout             int    `yaml:"timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

func NewMCP2221() *MCP2221 {
	return &MCP2221{
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: 50 * time.Millisecond,
	}
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdWriteData
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	if len(buffer) > 0 {
		copy(d.request[4:], buffer)
	}
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	// command could not be queued
	if d.response[1] == 0x01 {
		console.Debug("adapter busy")
		return eeprom.ErrBusBusy
	}
	return d.awaitTransfer(ctx, address)
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.requestRead(ctx, address, len(buffer)); err != nil {
		return err
	}
	return d.collectRead(ctx, address, buffer)
}

func (d *MCP2221) WriteReadAddr(ctx context.Context, address byte, out, in []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	// address-setting write without a stop condition, so the read below
	// begins with a repeated start
	d.resetBuffers()
	d.request[0] = cmdWriteDataNoSt
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(out)))
	d.request[3] = address << 1
	copy(d.request[4:], out)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("address write to %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		console.Debug("adapter busy")
		return eeprom.ErrBusBusy
	}
	if err = d.awaitTransfer(ctx, address); err != nil {
		return err
	}
	if err = d.requestRead(ctx, address, len(in)); err != nil {
		return err
	}
	return d.collectRead(ctx, address, in)
}

func (d *MCP2221) requestRead(ctx context.Context, address byte, length int) error {
	d.resetBuffers()
	d.request[0] = cmdReadData
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(length))
	d.request[3] = address<<1 + 1
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		console.Debug("adapter busy")
		return eeprom.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) collectRead(ctx context.Context, address byte, buffer []byte) error {
	d.request[0] = cmdGetReadData
	resetBuffer(d.response)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		// the engine aborted the read; a NACKed address is the usual cause
		if status, serr := d.status(ctx); serr == nil && status.NACKReceived {
			if cerr := d.cancelTransfer(ctx); cerr != nil {
				return cerr
			}
			return fmt.Errorf("read from %x: %w", address, eeprom.ErrNoAck)
		}
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

// awaitTransfer polls the engine until the queued transfer finished. The
// dongle reports a slave NACK through the status flags; the aborted
// transfer is cancelled before surfacing ErrNoAck so the engine is ready
// for the next probe.
func (d *MCP2221) awaitTransfer(ctx context.Context, address byte) error {
	for i := 0; i < engineRetries; i++ {
		status, err := d.status(ctx)
		if err != nil {
			return err
		}
		if status.NACKReceived {
			if err = d.cancelTransfer(ctx); err != nil {
				return err
			}
			return fmt.Errorf("device %x: %w", address, eeprom.ErrNoAck)
		}
		if status.I2CState == i2cStateIdle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return fmt.Errorf("transfer to %x did not complete: %w", address, eeprom.ErrBusBusy)
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(ctx)
}

func (d *MCP2221) status(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) cancelTransfer(ctx context.Context) error {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = i2cCancelTransfer
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("transfer cancel failed: %w", err)
	}
	return nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		8:  Internal I2C state machine value
		9:  Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
		20: bit 6 set when the slave NACKed the current write
		25: pending read byte count
	*/
	status := &MCP2221Status{
		I2CState:             buffer[8],
		NACKReceived:         buffer[20]&0x40 != 0,
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.releaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = i2cCancelTransfer
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context, response bool, id ...int) error {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) > 1 && len(id) == 0 {
		return fmt.Errorf("ambiguous device identification")
	}
	if len(devs) == 0 {
		return fmt.Errorf("MCP2221 device not found")
	}
	var dev *hid.Device
	var err error
	if len(id) == 0 {
		dev, err = devs[0].Open()
		if err != nil {
			return fmt.Errorf("error opening device: %w", err)
		}
	} else {
		for i := range devs {
			if i == id[0] {
				dev, err = devs[i].Open()
				if err != nil {
					return fmt.Errorf("error opening device: %w", err)
				}
			}
		}
		if dev == nil {
			return fmt.Errorf("no device with id %d", id[0])
		}
	}
	defer func() {
		_ = dev.Close()
	}()
	verbose := console.IsVerbose(ctx)
	if verbose {
		console.Printf("sending message to adapter:\n%s\n", hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	time.Sleep(d.responseWait)
	console.Debug("reading response from adapter")
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		console.Printf("read message from adapter:\n%s\n", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := 0; i < len(buf)-1; i++ {
		buf[i] = 0x00
	}
}
