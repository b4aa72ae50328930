package hexfile

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/moffa90/go-otap/fwerr"
)

func fill(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestMemoryWrite(t *testing.T) {
	tests := []struct {
		name    string
		writes  []Range
		overlap bool
		want    []Range
		wantErr bool
	}{
		{
			name:   "adjacent ranges merge",
			writes: []Range{{0, fill(1, 4)}, {4, fill(2, 4)}},
			want:   []Range{{0, append(fill(1, 4), fill(2, 4)...)}},
		},
		{
			name:   "adjacent before merges",
			writes: []Range{{4, fill(2, 4)}, {0, fill(1, 4)}},
			want:   []Range{{0, append(fill(1, 4), fill(2, 4)...)}},
		},
		{
			name:   "disjoint ranges stay sorted",
			writes: []Range{{0x20, fill(3, 2)}, {0x00, fill(1, 2)}, {0x10, fill(2, 2)}},
			want:   []Range{{0x00, fill(1, 2)}, {0x10, fill(2, 2)}, {0x20, fill(3, 2)}},
		},
		{
			name:    "overlap rejected",
			writes:  []Range{{0, fill(0xAA, 8)}, {4, fill(0xBB, 8)}},
			wantErr: true,
		},
		{
			name:    "overlap allowed, new data wins",
			writes:  []Range{{0, fill(0xAA, 8)}, {4, fill(0xBB, 8)}},
			overlap: true,
			want:    []Range{{0, append(fill(0xAA, 4), fill(0xBB, 8)...)}},
		},
		{
			name:    "overwrite splices several ranges",
			writes:  []Range{{0, fill(1, 4)}, {8, fill(2, 4)}, {16, fill(3, 4)}, {2, fill(0xCC, 16)}},
			overlap: true,
			want: []Range{{0, func() []byte {
				b := append(fill(1, 2), fill(0xCC, 16)...)
				return append(b, fill(3, 2)...)
			}()}},
		},
		{
			name:    "write inside existing range",
			writes:  []Range{{0, fill(1, 8)}, {2, fill(9, 2)}},
			overlap: true,
			want:    []Range{{0, []byte{1, 1, 9, 9, 1, 1, 1, 1}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemory()
			var err error
			for _, w := range tt.writes {
				if err = m.Write(w.Start, w.Data, tt.overlap); err != nil {
					break
				}
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var oe *OverlapError
				if !errors.As(err, &oe) {
					t.Errorf("expected *OverlapError, got %T", err)
				}
				if !errors.Is(err, fwerr.Capacity) {
					t.Errorf("expected capacity kind, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, m.Ranges()); diff != "" {
				t.Errorf("ranges mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	if err := m.Write(0, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, false); err != nil {
		t.Fatal(err)
	}
	if err := m.Write(20, []byte{20, 21}, false); err != nil {
		t.Fatal(err)
	}

	m.Delete(3, 6)
	want := []Range{{0, []byte{0, 1, 2}}, {6, []byte{6, 7, 8, 9}}, {20, []byte{20, 21}}}
	if diff := cmp.Diff(want, m.Ranges()); diff != "" {
		t.Fatalf("after split (-want +got):\n%s", diff)
	}

	m.Delete(8, 21)
	want = []Range{{0, []byte{0, 1, 2}}, {6, []byte{6, 7}}, {21, []byte{21}}}
	if diff := cmp.Diff(want, m.Ranges()); diff != "" {
		t.Fatalf("after trim (-want +got):\n%s", diff)
	}

	m.Delete(0, 100)
	if m.NumRanges() != 0 {
		t.Fatalf("expected empty memory, got %d ranges", m.NumRanges())
	}
}

func TestMemoryReadGapFill(t *testing.T) {
	m := NewMemory()
	m.GapFill = FlashErasedByte
	_ = m.Write(2, []byte{0x11, 0x22}, false)
	_ = m.Write(6, []byte{0x33}, false)

	got, err := m.Read(0, 8)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xFF, 0xFF, 0x11, 0x22, 0xFF, 0xFF, 0x33, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("Read() = % X, want % X", got, want)
	}
}

func TestMemoryCursorAndStats(t *testing.T) {
	m := NewMemory()
	m.Cursor = 0x100
	if err := m.Append([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if m.Cursor != 0x103 {
		t.Errorf("Cursor = 0x%x, want 0x103", m.Cursor)
	}
	if err := m.Write(0x200, []byte{4}, false); err != nil {
		t.Fatal(err)
	}
	if err := m.Append([]byte{5}); err != nil {
		t.Fatal(err)
	}

	lo, _ := m.MinAddress()
	hi, _ := m.MaxAddress()
	if lo != 0x100 || hi != 0x202 {
		t.Errorf("min/max = 0x%x/0x%x, want 0x100/0x202", lo, hi)
	}
	if m.Len() != 5 {
		t.Errorf("Len() = %d, want 5", m.Len())
	}
	if m.MaxGap() != 0x200-0x103 {
		t.Errorf("MaxGap() = 0x%x, want 0x%x", m.MaxGap(), 0x200-0x103)
	}

	empty := NewMemory()
	if _, ok := empty.MinAddress(); ok {
		t.Error("empty memory reported a minimum address")
	}
}

func TestMemoryAddressSpace(t *testing.T) {
	m := NewMemory()
	if err := m.Write(0xFFFFFFFF, []byte{1, 2}, false); !errors.Is(err, fwerr.Capacity) {
		t.Errorf("expected capacity error, got %v", err)
	}
	if err := m.Write(0xFFFFFFFE, []byte{1, 2}, false); err != nil {
		t.Errorf("write ending at the top of the space failed: %v", err)
	}
}

func TestMemoryMerge(t *testing.T) {
	a := NewMemory()
	b := NewMemory()
	_ = a.Write(0, []byte{1, 2}, false)
	_ = b.Write(2, []byte{3, 4}, false)
	a.Cursor = 0x50

	if err := a.Merge(b, false); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Range{{0, []byte{1, 2, 3, 4}}}, a.Ranges()); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
	if a.Cursor != 0x50 {
		t.Errorf("Merge moved the cursor to 0x%x", a.Cursor)
	}
}
