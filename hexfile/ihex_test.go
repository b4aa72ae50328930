package hexfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/moffa90/go-otap/fwerr"
)

func TestParseReader(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Range
		wantErr bool
		errMsg  string
	}{
		{
			name:  "single data record",
			input: ":0401000001020304F1\n:00000001FF\n",
			want:  []Range{{0x100, []byte{1, 2, 3, 4}}},
		},
		{
			name:  "crlf and blank lines",
			input: ":0401000001020304F1\r\n\r\n:00000001FF\r\n",
			want:  []Range{{0x100, []byte{1, 2, 3, 4}}},
		},
		{
			name:  "extended linear address",
			input: ":020000040001F9\n:0400000001020304F2\n:00000001FF\n",
			want:  []Range{{0x10000, []byte{1, 2, 3, 4}}},
		},
		{
			name:  "extended segment address",
			input: ":020000021000EC\n:0400000001020304F2\n:00000001FF\n",
			want:  []Range{{0x10000, []byte{1, 2, 3, 4}}},
		},
		{
			name:  "start linear address ignored",
			input: ":0400000500000000F7\n:0401000001020304F1\n:00000001FF\n",
			want:  []Range{{0x100, []byte{1, 2, 3, 4}}},
		},
		{
			name:  "records after eof ignored",
			input: ":0401000001020304F1\n:00000001FF\n:0400000001020304F2\n",
			want:  []Range{{0x100, []byte{1, 2, 3, 4}}},
		},
		{
			name:  "missing eof tolerated",
			input: ":0401000001020304F1\n",
			want:  []Range{{0x100, []byte{1, 2, 3, 4}}},
		},
		{
			name:    "bad checksum",
			input:   ":0401000001020304F2\n",
			wantErr: true,
			errMsg:  "checksum mismatch",
		},
		{
			name:    "byte count mismatch",
			input:   ":0501000001020304F0\n",
			wantErr: true,
			errMsg:  "byte count mismatch",
		},
		{
			name:    "missing colon",
			input:   "0401000001020304F1\n",
			wantErr: true,
			errMsg:  "does not start with ':'",
		},
		{
			name:    "invalid hex",
			input:   ":04010000010203ZZF1\n",
			wantErr: true,
			errMsg:  "invalid hex data",
		},
		{
			name:    "unknown record type",
			input:   ":00000006FA\n",
			wantErr: true,
			errMsg:  "unknown record type",
		},
		{
			name:    "short address record",
			input:   ":0100000210ED\n",
			wantErr: true,
			errMsg:  "expected 2",
		},
		{
			name:    "overlapping records",
			input:   ":0401000001020304F1\n:0401000001020304F1\n",
			wantErr: true,
			errMsg:  "overlaps",
		},
		{
			name:    "error carries line number",
			input:   ":0401000001020304F1\n\n:00000006FA\n",
			wantErr: true,
			errMsg:  "line 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseReader(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
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

func TestParseReaderErrorKind(t *testing.T) {
	_, err := ParseReader(strings.NewReader(":0401000001020304F2\n"))
	if !errors.Is(err, fwerr.MalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
	var re *RecordError
	if !errors.As(err, &re) || re.Line != 1 {
		t.Fatalf("expected *RecordError on line 1, got %v", err)
	}
}

func TestDecodeOffset(t *testing.T) {
	m := NewMemory()
	if err := Decode(m, strings.NewReader(":0401000001020304F1\n"), 0x1000, false); err != nil {
		t.Fatal(err)
	}
	lo, _ := m.MinAddress()
	if lo != 0x1100 {
		t.Errorf("MinAddress() = 0x%x, want 0x1100", lo)
	}
}

func TestEncodeExact(t *testing.T) {
	m := NewMemory()
	_ = m.Write(0x100, []byte{1, 2, 3, 4}, false)

	var buf bytes.Buffer
	if err := Encode(&buf, m, 0); err != nil {
		t.Fatal(err)
	}
	want := ":0401000001020304F1\r\n:00000001FF\r\n"
	if buf.String() != want {
		t.Errorf("Encode() = %q, want %q", buf.String(), want)
	}
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

func TestEncodeRoundTrip16Bit(t *testing.T) {
	m := NewMemory()
	_ = m.Write(0x0000, pattern(40, 1), false)
	_ = m.Write(0x8000, pattern(3, 9), false)
	_ = m.Write(0xFFF0, pattern(16, 5), false)

	var buf bytes.Buffer
	if err := Encode(&buf, m, 16); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), ":02000004") {
		t.Error("16-bit image must not carry extended linear address records")
	}

	got, err := ParseReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m.Ranges(), got.Ranges()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRoundTrip32Bit(t *testing.T) {
	m := NewMemory()
	_ = m.Write(0xFFF0, pattern(32, 3), false)
	_ = m.Write(0x20000, pattern(5, 11), false)

	var buf bytes.Buffer
	if err := Encode(&buf, m, 16); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, rec := range []string{":020000040000FA\r\n", ":020000040001F9\r\n", ":020000040002F8\r\n"} {
		if !strings.Contains(out, rec) {
			t.Errorf("missing extended linear address record %q", strings.TrimSpace(rec))
		}
	}
	if n := strings.Count(out, ":02000004"); n != 3 {
		t.Errorf("found %d extended linear address records, want 3", n)
	}
	if !strings.HasSuffix(out, ":00000001FF\r\n") {
		t.Error("output does not end with an EOF record")
	}

	got, err := ParseReader(strings.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m.Ranges(), got.Ranges()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeSplitsAtSegmentBoundary(t *testing.T) {
	m := NewMemory()
	_ = m.Write(0xFFF8, pattern(16, 0), false)

	var buf bytes.Buffer
	if err := Encode(&buf, m, 16); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\r\n")
	want := []string{":020000040000FA", ":08FFF800", ":020000040001F9", ":08000000", ":00000001FF"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), buf.String())
	}
	for i, prefix := range want {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], prefix)
		}
	}
}

func TestEncodeRecordLength(t *testing.T) {
	m := NewMemory()
	if err := Encode(&bytes.Buffer{}, m, 256); !errors.Is(err, fwerr.Configuration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	m := NewMemory()
	_ = m.Write(0x2000, pattern(100, 4), false)

	hexPath := filepath.Join(dir, "img.hex")
	if err := Save(m, hexPath, FormatFromPath(hexPath)); err != nil {
		t.Fatal(err)
	}
	binPath := filepath.Join(dir, "img.bin")
	if err := Save(m, binPath, FormatFromPath(binPath)); err != nil {
		t.Fatal(err)
	}

	fromHex := NewMemory()
	if err := Load(fromHex, hexPath, FormatHex, 0, false); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m.Ranges(), fromHex.Ranges()); diff != "" {
		t.Errorf("hex mismatch (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(binPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, pattern(100, 4)) {
		t.Error("binary image content mismatch")
	}

	fromBin := NewMemory()
	if err := Load(fromBin, binPath, FormatBinary, 0x2000, false); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m.Ranges(), fromBin.Ranges()); diff != "" {
		t.Errorf("bin mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteBinaryLimit(t *testing.T) {
	m := NewMemory()
	_ = m.Write(0, []byte{1}, false)
	_ = m.Write(MaxBinarySize+1, []byte{2}, false)

	if err := WriteBinary(&bytes.Buffer{}, m, 0, 0); !errors.Is(err, fwerr.Capacity) {
		t.Errorf("expected capacity error, got %v", err)
	}
	var buf bytes.Buffer
	if err := WriteBinary(&buf, m, MaxBinarySize, MaxBinarySize+2); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0, 2}) {
		t.Errorf("explicit span = % X", buf.Bytes())
	}
}

func BenchmarkEncode(b *testing.B) {
	m := NewMemory()
	_ = m.Write(0, pattern(256*1024, 1), false)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Encode(&bytes.Buffer{}, m, 16)
	}
}
