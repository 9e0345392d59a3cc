package at24cx

// span is one contiguous piece of a transfer that can be carried by a
// single bus transaction: it never crosses a page boundary (writes) nor a
// bank boundary (writes and reads), so one device-address byte and one
// in-chip start address cover it entirely.
type span struct {
	offset uint32
	length int
}

// plan decomposes a transfer range into spans, produced lazily in
// ascending offset order and consumed exactly once.
type plan struct {
	g         Geometry
	offset    uint32
	remaining uint32
	pageCut   bool
}

// planWrite builds the write plan for [offset, offset+length). Each span
// stays within one page and, on banked geometries, within one bank. The
// bank boundary is always a multiple of the page size in this family, but
// it is applied as an independent cut: a transaction must never need two
// device-address bytes.
func planWrite(g Geometry, offset uint32, length int) (*plan, error) {
	return newPlan(g, offset, length, true)
}

// planRead builds the read plan for [offset, offset+length). Page
// boundaries are transparent to reads (the chip auto-increments across
// them), so only bank boundaries cut the range.
func planRead(g Geometry, offset uint32, length int) (*plan, error) {
	return newPlan(g, offset, length, false)
}

func newPlan(g Geometry, offset uint32, length int, pageCut bool) (*plan, error) {
	if length < 0 || uint64(offset)+uint64(length) > uint64(g.Capacity) {
		return nil, ErrAddressOutOfBounds
	}
	return &plan{g: g, offset: offset, remaining: uint32(length), pageCut: pageCut}, nil
}

// next returns the next span and true, or a zero span and false once the
// plan is exhausted. A zero-length transfer yields an empty plan.
func (p *plan) next() (span, bool) {
	if p.remaining == 0 {
		return span{}, false
	}
	n := p.remaining
	if p.pageCut {
		page := uint32(p.g.PageSize)
		if room := page - p.offset%page; room < n {
			n = room
		}
	}
	if p.g.BankBits > 0 {
		bank := p.g.bankSize()
		if room := bank - p.offset%bank; room < n {
			n = room
		}
	}
	s := span{offset: p.offset, length: int(n)}
	p.offset += n
	p.remaining -= n
	return s, true
}
