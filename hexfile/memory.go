package hexfile

import (
	"fmt"
	"sort"

	"github.com/moffa90/go-otap/fwerr"
)

// Memory limits.
const (
	// DefaultAddressSpace is the size of a 32-bit address space
	DefaultAddressSpace = 1 << 32

	// DefaultGapFill is the byte Read uses for addresses with no data
	DefaultGapFill = 0x00
)

// Range is one contiguous run of bytes starting at Start.
type Range struct {
	// Start is the address of Data[0]
	Start uint64

	// Data holds the bytes of the range
	Data []byte
}

// End returns the address one past the last byte of the range.
func (r Range) End() uint64 {
	return r.Start + uint64(len(r.Data))
}

// Memory is a sparse byte-addressed memory image.
//
// Ranges are kept sorted by address, never overlap, and adjacent ranges are
// merged as soon as they touch.
type Memory struct {
	// Cursor is where Append writes next. Write moves it to the end of the
	// written span.
	Cursor uint64

	// OverlapOK lets Append overwrite existing data.
	OverlapOK bool

	// GapFill is returned by Read for addresses that hold no data.
	GapFill byte

	// AddressSpace bounds every address. Zero means DefaultAddressSpace.
	AddressSpace uint64

	ranges []Range
}

// NewMemory returns an empty memory spanning a 32-bit address space.
func NewMemory() *Memory {
	return &Memory{GapFill: DefaultGapFill, AddressSpace: DefaultAddressSpace}
}

func (m *Memory) space() uint64 {
	if m.AddressSpace == 0 {
		return DefaultAddressSpace
	}
	return m.AddressSpace
}

// Write stores data at addr. Writing over existing data fails unless overlapOK
// is set, in which case the new bytes win and any neighbouring ranges are
// spliced around them.
func (m *Memory) Write(addr uint64, data []byte, overlapOK bool) error {
	end := addr + uint64(len(data))
	if end < addr || end > m.space() {
		return fwerr.Capacityf("write", "span 0x%x..0x%x outside address space", addr, end)
	}
	if len(data) == 0 {
		m.Cursor = addr
		return nil
	}

	// ranges[i:j] touch or overlap [addr, end)
	i := sort.Search(len(m.ranges), func(k int) bool { return m.ranges[k].End() >= addr })
	j := sort.Search(len(m.ranges), func(k int) bool { return m.ranges[k].Start > end })

	for _, r := range m.ranges[i:j] {
		if r.Start < end && r.End() > addr && !overlapOK {
			return fwerr.Wrap(fwerr.Capacity, "write", &OverlapError{Start: addr, End: end, Existing: r})
		}
	}

	lo, hi := addr, end
	if i < j {
		if s := m.ranges[i].Start; s < lo {
			lo = s
		}
		if e := m.ranges[j-1].End(); e > hi {
			hi = e
		}
	}

	buf := make([]byte, hi-lo)
	for _, r := range m.ranges[i:j] {
		copy(buf[r.Start-lo:], r.Data)
	}
	copy(buf[addr-lo:], data)

	merged := make([]Range, 0, len(m.ranges)-(j-i)+1)
	merged = append(merged, m.ranges[:i]...)
	merged = append(merged, Range{Start: lo, Data: buf})
	merged = append(merged, m.ranges[j:]...)
	m.ranges = merged

	m.Cursor = end
	return nil
}

// Append writes data at the cursor, honouring OverlapOK.
func (m *Memory) Append(data []byte) error {
	return m.Write(m.Cursor, data, m.OverlapOK)
}

// Delete removes every byte in [start, end), splitting ranges as needed.
func (m *Memory) Delete(start, end uint64) {
	if end <= start {
		return
	}
	out := m.ranges[:0:0]
	for _, r := range m.ranges {
		if r.End() <= start || r.Start >= end {
			out = append(out, r)
			continue
		}
		if r.Start < start {
			out = append(out, Range{Start: r.Start, Data: r.Data[:start-r.Start]})
		}
		if r.End() > end {
			out = append(out, Range{Start: end, Data: r.Data[end-r.Start:]})
		}
	}
	m.ranges = out
}

// Read returns the bytes in [start, end); gaps are filled with GapFill.
func (m *Memory) Read(start, end uint64) ([]byte, error) {
	if end < start || end > m.space() {
		return nil, fwerr.Capacityf("read", "span 0x%x..0x%x outside address space", start, end)
	}
	buf := make([]byte, end-start)
	if m.GapFill != 0 {
		for i := range buf {
			buf[i] = m.GapFill
		}
	}
	for _, r := range m.ranges {
		if r.End() <= start || r.Start >= end {
			continue
		}
		from, to := r.Start, r.End()
		if from < start {
			from = start
		}
		if to > end {
			to = end
		}
		copy(buf[from-start:to-start], r.Data[from-r.Start:to-r.Start])
	}
	return buf, nil
}

// Merge copies every range of other into m. The cursor is left alone.
func (m *Memory) Merge(other *Memory, overlapOK bool) error {
	cursor := m.Cursor
	defer func() { m.Cursor = cursor }()
	for _, r := range other.ranges {
		if err := m.Write(r.Start, r.Data, overlapOK); err != nil {
			return err
		}
	}
	return nil
}

// Ranges returns the ranges in address order. The byte slices are shared
// with m and must not be modified.
func (m *Memory) Ranges() []Range {
	out := make([]Range, len(m.ranges))
	copy(out, m.ranges)
	return out
}

// NumRanges returns the number of disjoint ranges.
func (m *Memory) NumRanges() int { return len(m.ranges) }

// Len returns the number of bytes stored.
func (m *Memory) Len() int {
	n := 0
	for _, r := range m.ranges {
		n += len(r.Data)
	}
	return n
}

// MinAddress returns the lowest address holding data, and false when empty.
func (m *Memory) MinAddress() (uint64, bool) {
	if len(m.ranges) == 0 {
		return 0, false
	}
	return m.ranges[0].Start, true
}

// MaxAddress returns the address one past the highest byte, and false when
// empty.
func (m *Memory) MaxAddress() (uint64, bool) {
	if len(m.ranges) == 0 {
		return 0, false
	}
	return m.ranges[len(m.ranges)-1].End(), true
}

// MaxGap returns the largest distance between two consecutive ranges.
func (m *Memory) MaxGap() uint64 {
	var gap uint64
	for i := 1; i < len(m.ranges); i++ {
		if g := m.ranges[i].Start - m.ranges[i-1].End(); g > gap {
			gap = g
		}
	}
	return gap
}

// String describes the memory, one line per range.
func (m *Memory) String() string {
	s := fmt.Sprintf("%d bytes in %d ranges", m.Len(), len(m.ranges))
	for _, r := range m.ranges {
		s += fmt.Sprintf("\n  0x%08x..0x%08x (%d bytes)", r.Start, r.End(), len(r.Data))
	}
	return s
}
