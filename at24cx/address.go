package at24cx

// physAddr is the on-wire form of a logical offset: the 7-bit device
// address (base, select pins and bank bits merged) and the in-chip address
// bytes in wire order. Computed fresh per access, never stored.
type physAddr struct {
	device byte
	mem    [2]byte
	memLen int
}

// encodeAddress maps a logical offset onto the chip's physical addressing
// scheme. The low AddressBytes*8 bits become the in-chip address bytes
// (big endian, matching the wire order); the BankBits bits above them are
// OR'd into the low bits of the device address.
func encodeAddress(g Geometry, base byte, offset uint32) (physAddr, error) {
	if offset >= g.Capacity {
		return physAddr{}, ErrAddressOutOfBounds
	}
	pa := physAddr{
		device: base | byte(offset>>(8*uint32(g.AddressBytes))),
		memLen: int(g.AddressBytes),
	}
	if g.AddressBytes == 2 {
		pa.mem[0] = byte(offset >> 8)
		pa.mem[1] = byte(offset)
	} else {
		pa.mem[0] = byte(offset)
	}
	return pa, nil
}
