package hexfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/moffa90/go-otap/fwerr"
	"github.com/moffa90/go-otap/internal/atomicfile"
)

// Binary image limits.
const (
	// MaxBinarySize bounds WriteBinary when no explicit end address is given
	MaxBinarySize = 8 * 1024 * 1024

	// FlashErasedByte is the content of erased flash
	FlashErasedByte = 0xFF
)

// LoadBinary copies everything from r into m starting at offset.
func LoadBinary(m *Memory, r io.Reader, offset uint64, overlapOK bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read binary: %w", err)
	}
	return m.Write(offset, data, overlapOK)
}

// WriteBinary writes [start, end) of m to w, filling gaps with m.GapFill.
// A zero end means the highest address in m; in that case images over
// MaxBinarySize are refused so a stray far-away range cannot produce a
// multi-gigabyte file.
func WriteBinary(w io.Writer, m *Memory, start, end uint64) error {
	if end == 0 {
		maxAddr, ok := m.MaxAddress()
		if !ok {
			return fwerr.Malformedf("write binary", "memory holds no data")
		}
		end = maxAddr
		if end > start && end-start > MaxBinarySize {
			return fwerr.Capacityf("write binary", "image 0x%08x..0x%08x exceeds %d bytes", start, end, MaxBinarySize)
		}
	}
	data, err := m.Read(start, end)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Format is an on-disk image format.
type Format int

// Image formats.
const (
	// FormatBinary is a raw byte image
	FormatBinary Format = iota

	// FormatHex is Intel HEX
	FormatHex
)

func (f Format) String() string {
	if f == FormatHex {
		return "hex"
	}
	return "bin"
}

// FormatFromPath picks the format from a file extension: .hex and .ihex are
// Intel HEX, everything else is raw binary.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		return FormatHex
	}
	return FormatBinary
}

// Load reads an image file in the given format into m. Binary images are
// placed at offset; Intel HEX records are shifted by it.
func Load(m *Memory, path string, format Format, offset uint64, overlapOK bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if format == FormatHex {
		return Decode(m, f, int64(offset), overlapOK)
	}
	return LoadBinary(m, f, offset, overlapOK)
}

// Save writes m to path in the given format, replacing the file atomically.
func Save(m *Memory, path string, format Format) error {
	var buf bytes.Buffer
	if format == FormatHex {
		if err := Encode(&buf, m, DefaultRecordLength); err != nil {
			return err
		}
	} else {
		start, _ := m.MinAddress()
		if err := WriteBinary(&buf, m, start, 0); err != nil {
			return err
		}
	}
	return atomicfile.WriteFile(path, buf.Bytes(), 0o644)
}
