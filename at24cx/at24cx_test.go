package at24cx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/eeprom"
)

// MockI2CBus is a mock implementation of eeprom.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) WriteReadAddr(ctx context.Context, address byte, out, in []byte) error {
	args := m.Called(ctx, address, out, in)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(in) {
		copy(in, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func payload(b []byte) interface{} {
	expected := append([]byte(nil), b...)
	return mock.MatchedBy(func(got []byte) bool {
		return bytes.Equal(got, expected)
	})
}

func probe() interface{} {
	return mock.MatchedBy(func(got []byte) bool {
		return len(got) == 0
	})
}

// countingSleep records poll delays instead of suspending the test.
type countingSleep struct {
	delays []time.Duration
}

func (c *countingSleep) sleep(ctx context.Context, d time.Duration) error {
	c.delays = append(c.delays, d)
	return ctx.Err()
}

func nackErr(address byte) error {
	return fmt.Errorf("write to %#x failed: %w", address, eeprom.ErrNoAck)
}

func TestNew(t *testing.T) {
	bus := new(MockI2CBus)
	tests := []struct {
		name        string
		variant     Variant
		opts        []Opt
		expectedErr string
	}{
		{"default config", AT24C256, nil, ""},
		{"valid chip select", AT24C04, []Opt{WithChipSelect(0b110)}, ""},
		{"chip select collides with bank bits", AT24C04, []Opt{WithChipSelect(0b001)}, "not available"},
		{"unsupported variant", Variant(42), nil, "unsupported variant"},
		{"zero poll attempts", AT24C02, []Opt{WithPollAttempts(0)}, "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := New(bus, tt.variant, tt.opts...)
			if tt.expectedErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.variant, dev.Variant())
			geo := geometries[tt.variant]
			assert.Equal(t, geo.Capacity, dev.Capacity())
		})
	}
}

func TestWrite_SplitsAtPageBoundary(t *testing.T) {
	bus := new(MockI2CBus)
	sleep := &countingSleep{}
	dev, err := New(bus, AT24C256, WithSleep(sleep.sleep))
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	bus.On("WriteToAddr", mock.Anything, byte(0x50), payload([]byte{0x00, 60, 1, 2, 3, 4})).
		Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x50), payload([]byte{0x00, 64, 5, 6, 7, 8})).
		Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x50), probe()).
		Return(nil).Twice()

	require.NoError(t, dev.Write(ctx, 60, data))
	assert.Empty(t, sleep.delays, "chip acked immediately, no poll delay expected")
	bus.AssertExpectations(t)
}

func TestWrite_BankBoundaryChangesDeviceAddress(t *testing.T) {
	bus := new(MockI2CBus)
	sleep := &countingSleep{}
	dev, err := New(bus, AT24CM01, WithSleep(sleep.sleep))
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	// 0xFFFE..0xFFFF belong to bank 0, 0x10000.. to bank 1
	bus.On("WriteToAddr", mock.Anything, byte(0x50), payload([]byte{0xFF, 0xFE, 0xAA, 0xBB})).
		Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x50), probe()).
		Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x51), payload([]byte{0x00, 0x00, 0xCC, 0xDD})).
		Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x51), probe()).
		Return(nil).Once()

	require.NoError(t, dev.Write(ctx, 0xFFFE, data))
	bus.AssertExpectations(t)
}

func TestWrite_PollsUntilAck(t *testing.T) {
	bus := new(MockI2CBus)
	sleep := &countingSleep{}
	interval := 250 * time.Microsecond
	dev, err := New(bus, AT24C02,
		WithPollAttempts(5),
		WithPollInterval(interval),
		WithSleep(sleep.sleep),
	)
	require.NoError(t, err)
	ctx := context.Background()

	bus.On("WriteToAddr", mock.Anything, byte(0x50), payload([]byte{10, 0x42})).
		Return(nil).Once()
	// chip stays busy for four probes, acks on the fifth
	bus.On("WriteToAddr", mock.Anything, byte(0x50), probe()).
		Return(nackErr(0x50)).Times(4)
	bus.On("WriteToAddr", mock.Anything, byte(0x50), probe()).
		Return(nil).Once()

	require.NoError(t, dev.Write(ctx, 10, []byte{0x42}))
	require.Len(t, sleep.delays, 4, "one delay between each pair of probes")
	for _, d := range sleep.delays {
		assert.Equal(t, interval, d)
	}
	bus.AssertExpectations(t)
}

func TestWrite_PollTimeout(t *testing.T) {
	bus := new(MockI2CBus)
	sleep := &countingSleep{}
	dev, err := New(bus, AT24C02, WithPollAttempts(5), WithSleep(sleep.sleep))
	require.NoError(t, err)
	ctx := context.Background()

	bus.On("WriteToAddr", mock.Anything, byte(0x50), payload([]byte{10, 0x42})).
		Return(nil).Once()
	// chip never recovers: exactly the budgeted number of probes, then fail
	bus.On("WriteToAddr", mock.Anything, byte(0x50), probe()).
		Return(nackErr(0x50)).Times(5)

	err = dev.Write(ctx, 10, []byte{0x42})
	assert.ErrorIs(t, err, ErrWriteTimeout)
	assert.Len(t, sleep.delays, 4)
	bus.AssertExpectations(t)
}

func TestWrite_PollAbortsOnBusFault(t *testing.T) {
	bus := new(MockI2CBus)
	sleep := &countingSleep{}
	dev, err := New(bus, AT24C02, WithPollAttempts(5), WithSleep(sleep.sleep))
	require.NoError(t, err)
	ctx := context.Background()

	fault := errors.New("arbitration lost")
	bus.On("WriteToAddr", mock.Anything, byte(0x50), payload([]byte{10, 0x42})).
		Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x50), probe()).
		Return(fault).Once()

	err = dev.Write(ctx, 10, []byte{0x42})
	assert.ErrorIs(t, err, fault)
	assert.NotErrorIs(t, err, ErrWriteTimeout)
	assert.Empty(t, sleep.delays, "bus faults are not retried")
	bus.AssertExpectations(t)
}

func TestWrite_FailsFastOnFirstChunk(t *testing.T) {
	bus := new(MockI2CBus)
	dev, err := New(bus, AT24C256, WithSleep((&countingSleep{}).sleep))
	require.NoError(t, err)
	ctx := context.Background()

	fault := errors.New("transfer aborted")
	bus.On("WriteToAddr", mock.Anything, byte(0x50), payload([]byte{0x00, 60, 1, 2, 3, 4})).
		Return(fault).Once()

	err = dev.Write(ctx, 60, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.ErrorIs(t, err, fault)
	// the second span must never be attempted
	bus.AssertNumberOfCalls(t, "WriteToAddr", 1)
	bus.AssertExpectations(t)
}

func TestWrite_ProbeDummyByte(t *testing.T) {
	bus := new(MockI2CBus)
	dev, err := New(bus, AT24C02, WithSleep((&countingSleep{}).sleep), WithProbeDummyByte())
	require.NoError(t, err)
	ctx := context.Background()

	bus.On("WriteToAddr", mock.Anything, byte(0x50), payload([]byte{10, 0x42})).
		Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x50), payload([]byte{0x00})).
		Return(nil).Once()

	require.NoError(t, dev.Write(ctx, 10, []byte{0x42}))
	bus.AssertExpectations(t)
}

func TestWrite_ContextCancelledDuringPoll(t *testing.T) {
	bus := new(MockI2CBus)
	dev, err := New(bus, AT24C02)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	bus.On("WriteToAddr", mock.Anything, byte(0x50), payload([]byte{10, 0x42})).
		Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x50), probe()).
		Return(nackErr(0x50)).Once().
		Run(func(mock.Arguments) { cancel() })

	err = dev.Write(ctx, 10, []byte{0x42})
	assert.ErrorIs(t, err, context.Canceled)
	bus.AssertExpectations(t)
}

func TestRead_SingleTransaction(t *testing.T) {
	bus := new(MockI2CBus)
	dev, err := New(bus, AT24C256)
	require.NoError(t, err)
	ctx := context.Background()

	expected := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	bus.On("WriteReadAddr", mock.Anything, byte(0x50), payload([]byte{0x12, 0x34}), mock.Anything).
		Return(expected, nil).Once()

	buf := make([]byte, 4)
	require.NoError(t, dev.Read(ctx, 0x1234, buf))
	assert.Equal(t, expected, buf)
	bus.AssertExpectations(t)
}

func TestRead_SplitsAtBankBoundaryOnly(t *testing.T) {
	bus := new(MockI2CBus)
	dev, err := New(bus, AT24CM01)
	require.NoError(t, err)
	ctx := context.Background()

	// crosses many page boundaries inside bank 0, then the bank boundary
	bus.On("WriteReadAddr", mock.Anything, byte(0x50), payload([]byte{0xFD, 0x00}), mock.Anything).
		Return(bytes.Repeat([]byte{0x11}, 0x300), nil).Once()
	bus.On("WriteReadAddr", mock.Anything, byte(0x51), payload([]byte{0x00, 0x00}), mock.Anything).
		Return(bytes.Repeat([]byte{0x22}, 0x100), nil).Once()

	buf := make([]byte, 0x400)
	require.NoError(t, dev.Read(ctx, 0xFD00, buf))
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 0x300), buf[:0x300])
	assert.Equal(t, bytes.Repeat([]byte{0x22}, 0x100), buf[0x300:])
	bus.AssertExpectations(t)
}

func TestReadWrite_OutOfBounds(t *testing.T) {
	bus := new(MockI2CBus)
	dev, err := New(bus, AT24C256)
	require.NoError(t, err)
	ctx := context.Background()

	buf := make([]byte, 2)
	err = dev.Read(ctx, dev.Capacity()-1, buf)
	assert.ErrorIs(t, err, ErrAddressOutOfBounds)

	err = dev.Write(ctx, dev.Capacity()-1, buf)
	assert.ErrorIs(t, err, ErrAddressOutOfBounds)

	// bounds are checked before any bus activity
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
	bus.AssertNotCalled(t, "WriteReadAddr", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadWrite_ZeroLength(t *testing.T) {
	bus := new(MockI2CBus)
	dev, err := New(bus, AT24C256)
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, dev.Read(ctx, 100, nil))
	assert.NoError(t, dev.Write(ctx, 100, nil))
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
}
