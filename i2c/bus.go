package i2c

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/mklimuk/eeprom"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var _ eeprom.I2CBus = &GenericBus{}

// GenericBus drives any periph.io-registered I2C bus (Linux i2cdev and
// friends). Slave NACKs are mapped to eeprom.ErrNoAck so that ack polling
// can tell a busy chip from a bus fault.
type GenericBus struct {
	bus i2c.BusCloser
}

func NewGenericBus(dev string) (*GenericBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		bus: bus,
	}, nil
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, classify(err))
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, classify(err))
	}
	return nil
}

func (b *GenericBus) WriteReadAddr(ctx context.Context, address byte, out, in []byte) error {
	err := b.bus.Tx(uint16(address), out, in)
	if err != nil {
		return fmt.Errorf("combined transaction on i2c bus %x failed: %w", address, classify(err))
	}
	return nil
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}

// classify keeps the original error but chains eeprom.ErrNoAck onto errno
// values the kernel uses for an unacknowledged address byte. ENXIO is the
// documented i2c-dev response; some controllers report EIO instead.
func classify(err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.ENXIO || errno == syscall.EIO) {
		return fmt.Errorf("%w: %w", eeprom.ErrNoAck, err)
	}
	return err
}
