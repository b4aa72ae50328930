// Package hexfile models sparse firmware memory images and reads and writes
// them as Intel HEX or raw binary.
//
// # Memory Model
//
// A Memory is a set of disjoint byte ranges in a 32-bit address space.
// Ranges are kept sorted, and ranges that become adjacent are merged, so the
// image always has the fewest ranges that describe it:
//
//	mem := hexfile.NewMemory()
//	_ = mem.Write(0x1000, []byte{0x01, 0x02}, false)
//	_ = mem.Write(0x1002, []byte{0x03}, false) // merged into one range
//
// Overwriting existing data is an error unless overlap is allowed, in which
// case the new bytes win. Read returns a dense buffer with gaps filled by
// GapFill.
//
// # Intel HEX
//
// Record format (after the leading ':'), all fields hex encoded:
//
//	[ByteCount(1)][Address(2)][Type(1)][Data(N)][Checksum(1)]
//
// Supported record types are data (00), end of file (01), extended segment
// address (02) and extended linear address (04). Start address records (03,
// 05) are accepted and ignored.
//
// Usage:
//
//	mem, err := hexfile.Parse("app.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := hexfile.Save(mem, "app.bin", hexfile.FormatBinary); err != nil {
//	    log.Fatal(err)
//	}
package hexfile
