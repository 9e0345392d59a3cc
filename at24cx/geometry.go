package at24cx

import "strings"

// BaseAddress is the fixed 7-bit device address prefix of the 24Cx family
// (0b1010xxx). Hardware select pins and, on larger variants, memory bank
// bits occupy the low three bits.
const BaseAddress byte = 0x50

// Geometry describes the physical addressing scheme of one chip variant:
// total capacity, the size of the internal write buffer (page), how many
// bytes encode an in-chip offset on the wire and how many low bits of the
// device address select a memory bank instead of a chip.
type Geometry struct {
	// Capacity is the total addressable storage in bytes.
	Capacity uint32
	// PageSize is the chip's internal write buffer size. A single write
	// transaction must not cross a page boundary; the chip would wrap
	// within the page and overwrite earlier bytes.
	PageSize uint16
	// AddressBytes is the number of in-chip address bytes (1 or 2).
	AddressBytes uint8
	// BankBits is the number of low device-address bits repurposed as
	// high-order memory address bits (0 on single-bank chips, up to 2).
	BankBits uint8
}

// bankSize is the span addressable with the in-chip address bytes alone.
// Bank boundaries are the only cuts visible to reads; the chip's address
// pointer auto-increments across pages but not across banks.
func (g Geometry) bankSize() uint32 {
	return 1 << (8 * uint32(g.AddressBytes))
}

// selectMask returns the device-address bits still available for hardware
// chip-select pins on this variant.
func (g Geometry) selectMask() byte {
	return 0x07 &^ (byte(1)<<g.BankBits - 1)
}

// Variant identifies a supported chip of the 24Cx family.
type Variant int

const (
	AT24C01 Variant = iota
	AT24C02
	AT24C04
	AT24C08
	AT24C32
	AT24C64
	AT24C128
	AT24C256
	AT24C512
	AT24CM01
)

var variantNames = map[Variant]string{
	AT24C01:  "AT24C01",
	AT24C02:  "AT24C02",
	AT24C04:  "AT24C04",
	AT24C08:  "AT24C08",
	AT24C32:  "AT24C32",
	AT24C64:  "AT24C64",
	AT24C128: "AT24C128",
	AT24C256: "AT24C256",
	AT24C512: "AT24C512",
	AT24CM01: "AT24CM01",
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return "unknown"
}

// geometries maps each supported variant to its datasheet geometry.
// AT24C16 is deliberately absent: it repurposes all three select bits as
// bank bits, leaving no chip-select pins, and is not covered by this model.
var geometries = map[Variant]Geometry{
	AT24C01:  {Capacity: 128, PageSize: 8, AddressBytes: 1, BankBits: 0},
	AT24C02:  {Capacity: 256, PageSize: 8, AddressBytes: 1, BankBits: 0},
	AT24C04:  {Capacity: 512, PageSize: 16, AddressBytes: 1, BankBits: 1},
	AT24C08:  {Capacity: 1024, PageSize: 16, AddressBytes: 1, BankBits: 2},
	AT24C32:  {Capacity: 4096, PageSize: 32, AddressBytes: 2, BankBits: 0},
	AT24C64:  {Capacity: 8192, PageSize: 32, AddressBytes: 2, BankBits: 0},
	AT24C128: {Capacity: 16384, PageSize: 64, AddressBytes: 2, BankBits: 0},
	AT24C256: {Capacity: 32768, PageSize: 64, AddressBytes: 2, BankBits: 0},
	AT24C512: {Capacity: 65536, PageSize: 128, AddressBytes: 2, BankBits: 0},
	AT24CM01: {Capacity: 131072, PageSize: 256, AddressBytes: 2, BankBits: 1},
}

// GeometryOf returns the geometry of a supported variant.
func GeometryOf(v Variant) (Geometry, bool) {
	g, ok := geometries[v]
	return g, ok
}

// ParseVariant resolves a part name like "AT24C256" (case insensitive,
// the "AT" prefix optional) to a variant.
func ParseVariant(name string) (Variant, bool) {
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "AT") {
		upper = "AT" + upper
	}
	for v, n := range variantNames {
		if n == upper {
			return v, true
		}
	}
	return 0, false
}
