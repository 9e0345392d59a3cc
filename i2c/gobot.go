package i2c

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/eeprom"
	gi2c "gobot.io/x/gobot/v2/drivers/i2c"
)

var _ eeprom.I2CBus = &GobotBus{}

// GobotBus adapts a gobot I2C connector (any gobot platform adaptor) to
// the eeprom bus interface. Gobot hands out one connection per device
// address; connections are opened lazily and cached.
//
// Gobot offers no combined write-then-read transaction, so WriteReadAddr
// issues two bus transactions with a stop condition in between. The 24Cx
// chips keep their internal address pointer across the stop, which makes
// the sequence equivalent as long as the bus is exclusively owned.
type GobotBus struct {
	mx        sync.Mutex
	connector gi2c.Connector
	busNr     int
	conns     map[byte]gi2c.Connection
}

func NewGobotBus(connector gi2c.Connector, busNr int) *GobotBus {
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		conns:     make(map[byte]gi2c.Connection),
	}
}

func (b *GobotBus) connection(address byte) (gi2c.Connection, error) {
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not get connection to %x on bus %d: %w", address, b.busNr, err)
	}
	b.conns[address] = conn
	return conn, nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if err = conn.WriteBytes(buffer); err != nil {
		return fmt.Errorf("could not write to %x: %w", address, classify(err))
	}
	return nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from %x: %w", address, classify(err))
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from %x: %d of %d bytes", address, n, len(buffer))
	}
	return nil
}

func (b *GobotBus) WriteReadAddr(ctx context.Context, address byte, out, in []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if err = conn.WriteBytes(out); err != nil {
		return fmt.Errorf("could not write address bytes to %x: %w", address, classify(err))
	}
	n, err := conn.Read(in)
	if err != nil {
		return fmt.Errorf("could not read from %x: %w", address, classify(err))
	}
	if n != len(in) {
		return fmt.Errorf("short read from %x: %d of %d bytes", address, n, len(in))
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var first error
	for address, conn := range b.conns {
		if err := conn.Close(); err != nil && first == nil {
			first = fmt.Errorf("could not close connection to %x: %w", address, err)
		}
		delete(b.conns, address)
	}
	return first
}
