package at24cx

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAddress(t *testing.T) {
	tests := []struct {
		name     string
		variant  Variant
		base     byte
		offset   uint32
		device   byte
		mem      []byte
	}{
		{"one byte address", AT24C02, 0x50, 0x5A, 0x50, []byte{0x5A}},
		{"two byte address big endian", AT24C256, 0x50, 0x1234, 0x50, []byte{0x12, 0x34}},
		{"first bank of banked chip", AT24C04, 0x50, 0xFF, 0x50, []byte{0xFF}},
		{"second bank sets device bit", AT24C04, 0x50, 0x100, 0x51, []byte{0x00}},
		{"two bank bits", AT24C08, 0x50, 0x3FF, 0x53, []byte{0xFF}},
		{"select pins preserved", AT24C04, 0x54, 0x1FF, 0x55, []byte{0xFF}},
		{"1Mbit below bank boundary", AT24CM01, 0x50, 0xFFFF, 0x50, []byte{0xFF, 0xFF}},
		{"1Mbit above bank boundary", AT24CM01, 0x50, 0x10000, 0x51, []byte{0x00, 0x00}},
		{"1Mbit last byte", AT24CM01, 0x52, 0x1FFFF, 0x53, []byte{0xFF, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo := geometries[tt.variant]
			pa, err := encodeAddress(geo, tt.base, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.device, pa.device)
			assert.Equal(t, tt.mem, pa.mem[:pa.memLen])
		})
	}
}

func TestEncodeAddress_OutOfBounds(t *testing.T) {
	for variant, geo := range geometries {
		t.Run(variant.String(), func(t *testing.T) {
			_, err := encodeAddress(geo, BaseAddress, geo.Capacity)
			assert.ErrorIs(t, err, ErrAddressOutOfBounds)
		})
	}
}

// The encoding must be invertible: bank bits concatenated with the in-chip
// address bytes recover the logical offset exactly.
func TestEncodeAddress_RoundTrip(t *testing.T) {
	for variant, geo := range geometries {
		offsets := []uint32{0, 1, geo.Capacity / 3, geo.Capacity / 2, geo.Capacity - 1}
		if geo.BankBits > 0 {
			bank := geo.bankSize()
			offsets = append(offsets, bank-1, bank, bank+1)
		}
		for _, offset := range offsets {
			t.Run(fmt.Sprintf("%s/%#x", variant, offset), func(t *testing.T) {
				pa, err := encodeAddress(geo, BaseAddress, offset)
				require.NoError(t, err)
				recovered := uint32(pa.device &^ BaseAddress)
				for _, b := range pa.mem[:pa.memLen] {
					recovered = recovered<<8 | uint32(b)
				}
				assert.Equal(t, offset, recovered)
			})
		}
	}
}
