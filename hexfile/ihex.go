package hexfile

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/moffa90/go-otap/fwerr"
)

// Intel HEX record types.
const (
	// RecordData carries data bytes
	RecordData = 0x00

	// RecordEOF terminates the file
	RecordEOF = 0x01

	// RecordExtendedSegment sets bits 4..19 of the base address
	RecordExtendedSegment = 0x02

	// RecordStartSegment holds a CS:IP start address (ignored)
	RecordStartSegment = 0x03

	// RecordExtendedLinear sets bits 16..31 of the base address
	RecordExtendedLinear = 0x04

	// RecordStartLinear holds an EIP start address (ignored)
	RecordStartLinear = 0x05
)

// Intel HEX format limits.
const (
	// MaxLineLength is the longest accepted record line, in characters
	MaxLineLength = 1 + 2*(5+255)

	// DefaultRecordLength is the number of data bytes per record written by Encode
	DefaultRecordLength = 16

	// MaxRecordLength is the largest data payload of one record
	MaxRecordLength = 255

	// SegmentSize is the span addressable by a 16-bit record offset
	SegmentSize = 0x10000

	// recordOverhead is byte count + address (2) + type + checksum
	recordOverhead = 5
)

// Parse reads an Intel HEX file into a new Memory.
//
// Example:
//
//	mem, err := hexfile.Parse("bootloader.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	lo, _ := mem.MinAddress()
//	fmt.Printf("%d bytes from 0x%08x\n", mem.Len(), lo)
func Parse(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f)
}

// ParseReader reads Intel HEX records from any io.Reader into a new Memory.
func ParseReader(r io.Reader) (*Memory, error) {
	m := NewMemory()
	if err := Decode(m, r, 0, false); err != nil {
		return nil, err
	}
	return m, nil
}

// Decode reads Intel HEX records from r into m. Every data record is stored
// at its record address plus offset. Reading stops at the EOF record; a
// missing EOF record is tolerated.
func Decode(m *Memory, r io.Reader, offset int64, overlapOK bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024), MaxLineLength+2)

	var base uint64
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := parseRecord(line)
		if err != nil {
			return fwerr.Wrap(fwerr.MalformedInput, "parse hex", &RecordError{Line: lineNum, Reason: err.Error()})
		}

		switch rec.kind {
		case RecordData:
			addr := int64(base+uint64(rec.offset)) + offset
			if addr < 0 {
				return fwerr.Wrap(fwerr.MalformedInput, "parse hex",
					&RecordError{Line: lineNum, Reason: "negative address after offset"})
			}
			if err := m.Write(uint64(addr), rec.data, overlapOK); err != nil {
				return fmt.Errorf("line %d: %w", lineNum, err)
			}
		case RecordEOF:
			return nil
		case RecordExtendedSegment, RecordExtendedLinear:
			if len(rec.data) != 2 {
				return fwerr.Wrap(fwerr.MalformedInput, "parse hex",
					&RecordError{Line: lineNum, Reason: fmt.Sprintf("address record carries %d bytes, expected 2", len(rec.data))})
			}
			v := uint64(rec.data[0])<<8 | uint64(rec.data[1])
			if rec.kind == RecordExtendedSegment {
				base = v << 4
			} else {
				base = v << 16
			}
		case RecordStartSegment, RecordStartLinear:
			// start addresses have no meaning for a flash image
		default:
			return fwerr.Wrap(fwerr.MalformedInput, "parse hex",
				&RecordError{Line: lineNum, Reason: fmt.Sprintf("unknown record type 0x%02x", rec.kind)})
		}
	}

	if err := scanner.Err(); err != nil {
		return fwerr.Wrap(fwerr.MalformedInput, "parse hex", fmt.Errorf("failed to read file: %w", err))
	}
	return nil
}

type record struct {
	kind   byte
	offset uint16
	data   []byte
}

// parseRecord decodes one ':'-prefixed line.
//
// Record format (hex encoded after the colon):
//
//	[ByteCount(1)][Address(2, big-endian)][Type(1)][Data(N)][Checksum(1)]
//
// The checksum makes the sum of all bytes zero modulo 256.
func parseRecord(line string) (*record, error) {
	if line[0] != ':' {
		return nil, fmt.Errorf("record does not start with ':'")
	}
	if len(line) > MaxLineLength {
		return nil, fmt.Errorf("record too long: %d characters", len(line))
	}

	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	if len(raw) < recordOverhead {
		return nil, fmt.Errorf("record too short: %d bytes", len(raw))
	}
	if want := recordOverhead + int(raw[0]); len(raw) != want {
		return nil, fmt.Errorf("byte count mismatch: record holds %d bytes, expected %d", len(raw), want)
	}

	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		return nil, fmt.Errorf("checksum mismatch: got 0x%02X, expected 0x%02X",
			raw[len(raw)-1], recordChecksum(raw[:len(raw)-1]))
	}

	return &record{
		kind:   raw[3],
		offset: uint16(raw[1])<<8 | uint16(raw[2]),
		data:   raw[4 : len(raw)-1],
	}, nil
}

// recordChecksum is the two's complement of the byte sum.
func recordChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1
}

// writeRecord emits one record line.
func writeRecord(w *bufio.Writer, kind byte, offset uint16, data []byte) error {
	raw := make([]byte, 0, recordOverhead+len(data))
	raw = append(raw, byte(len(data)), byte(offset>>8), byte(offset), kind)
	raw = append(raw, data...)
	raw = append(raw, recordChecksum(raw))

	if err := w.WriteByte(':'); err != nil {
		return err
	}
	if _, err := w.WriteString(strings.ToUpper(hex.EncodeToString(raw))); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

// Encode writes m as Intel HEX.
//
// Images ending at or below 64 KiB use plain 16-bit records. Larger images get
// an Extended Linear Address record at the start of every range and whenever
// a record ends on a 64 KiB boundary. No record crosses a 64 KiB boundary.
// recordLen bounds the data bytes per record; zero selects DefaultRecordLength.
func Encode(w io.Writer, m *Memory, recordLen int) error {
	if recordLen == 0 {
		recordLen = DefaultRecordLength
	}
	if recordLen < 1 || recordLen > MaxRecordLength {
		return fwerr.Configf("encode hex", "record length %d out of range 1..%d", recordLen, MaxRecordLength)
	}

	maxAddr, _ := m.MaxAddress()
	linear := maxAddr > SegmentSize

	bw := bufio.NewWriter(w)
	for _, r := range m.ranges {
		addr := r.Start
		data := r.Data
		emitBase := linear

		for len(data) > 0 {
			if emitBase {
				upper := uint16(addr >> 16)
				if err := writeRecord(bw, RecordExtendedLinear, 0, []byte{byte(upper >> 8), byte(upper)}); err != nil {
					return err
				}
				emitBase = false
			}

			n := recordLen
			if n > len(data) {
				n = len(data)
			}
			if room := SegmentSize - addr%SegmentSize; uint64(n) > room {
				n = int(room)
			}

			if err := writeRecord(bw, RecordData, uint16(addr), data[:n]); err != nil {
				return err
			}
			addr += uint64(n)
			data = data[n:]

			if linear && addr%SegmentSize == 0 {
				emitBase = true
			}
		}
	}

	if err := writeRecord(bw, RecordEOF, 0, nil); err != nil {
		return err
	}
	return bw.Flush()
}
