package eeprom

import (
	"context"
	"fmt"
)

// ErrNoAck signals that the addressed device did not acknowledge the
// transfer. EEPROMs stop acknowledging their own address while an internal
// write cycle is in progress, so transports must return an error wrapping
// ErrNoAck for a slave NACK so that it stays distinguishable (via
// errors.Is) from other bus faults.
var ErrNoAck = fmt.Errorf("no acknowledgment from device")

// ErrBusBusy signals that the bus engine could not start the transfer
// (previous command not completed).
var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type BusReader interface {
	Read(ctx context.Context, buffer []byte) error
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// AddressableWriterReader performs a combined write-then-read transaction
// (repeated start, no stop condition in between). Memory devices need it to
// set their internal address pointer and read back in one bus transaction.
type AddressableWriterReader interface {
	WriteReadAddr(ctx context.Context, address byte, out, in []byte) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
	AddressableWriterReader
}

type I2CDevice interface {
	BusReader
	BusWriter
}
