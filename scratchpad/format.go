package scratchpad

import (
	"encoding/binary"

	"github.com/moffa90/go-otap/infile"
)

// Tag identifies a scratchpad. It is the first thing in the file.
var Tag = [TagSize]byte{
	'S', 'C', 'R', '1',
	0x9A, 0x93, 0x30, 0x82, 0xD9, 0xEB, 0x0A, 0xFC, 0x31, 0x21, 0xE3, 0x37,
}

// Scratchpad layout sizes.
const (
	// TagSize is the size of the magic tag
	TagSize = 16

	// HeaderSize is the size of the header that follows the tag
	HeaderSize = 16

	// PrefixSize is the tag and header together; Header.Length counts every
	// byte after it
	PrefixSize = TagSize + HeaderSize

	// AuthTagSize is the size of the CMAC tag field
	AuthTagSize = 16

	// SecureHeaderSize is the size of the random initial counter block
	SecureHeaderSize = 16

	// FileHeaderSize is the size of the header in front of each payload
	FileHeaderSize = 16

	// BlockSize is the alignment of every payload and of Header.Length
	BlockSize = 16

	// MinSize is the smallest well-formed scratchpad: prefix, auth tag and
	// secure header
	MinSize = PrefixSize + AuthTagSize + SecureHeaderSize

	// MaxSize is the largest accepted scratchpad
	MaxSize = 16 * 1024 * 1024
)

// Header field values written by the builder.
const (
	// DefaultSeq is the sequence number placeholder; the OTAP layer sets the real one
	DefaultSeq = 0xFF

	// TypeBlob is the scratchpad type for firmware packages
	TypeBlob = 0

	// StatusErased is the status word of a scratchpad not yet processed
	StatusErased = 0xFFFFFFFF

	// SignatureAreaID is the area id of the ECDSA signature slot
	SignatureAreaID = 0xFFFFFFFF
)

// Header follows the tag.
//
// Format (16 bytes, little-endian):
//
//	[Length(4)][CRC(2)][Seq(1)][Pad(1)][Type(4)][Status(4)]
//
// Length and CRC cover everything after the header.
type Header struct {
	Length uint32
	CRC    uint16
	Seq    uint8
	Pad    uint8
	Type   uint32
	Status uint32
}

// Bytes encodes the header.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:], h.Length)
	binary.LittleEndian.PutUint16(b[4:], h.CRC)
	b[6] = h.Seq
	b[7] = h.Pad
	binary.LittleEndian.PutUint32(b[8:], h.Type)
	binary.LittleEndian.PutUint32(b[12:], h.Status)
	return b
}

func parseHeader(b []byte) Header {
	return Header{
		Length: binary.LittleEndian.Uint32(b[0:]),
		CRC:    binary.LittleEndian.Uint16(b[4:]),
		Seq:    b[6],
		Pad:    b[7],
		Type:   binary.LittleEndian.Uint32(b[8:]),
		Status: binary.LittleEndian.Uint32(b[12:]),
	}
}

// FileHeader precedes each payload.
//
// Format (16 bytes, little-endian):
//
//	[AreaID(4)][Length(4)][Major(1)][Minor(1)][Maint(1)][Devel(1)][Pad(4)]
//
// Length is the stored payload size after compression and padding.
type FileHeader struct {
	AreaID  uint32
	Length  uint32
	Version infile.Version
	Pad     uint32
}

// Bytes encodes the file header.
func (h FileHeader) Bytes() []byte {
	b := make([]byte, FileHeaderSize)
	binary.LittleEndian.PutUint32(b[0:], h.AreaID)
	binary.LittleEndian.PutUint32(b[4:], h.Length)
	copy(b[8:12], h.Version[:])
	binary.LittleEndian.PutUint32(b[12:], h.Pad)
	return b
}

func parseFileHeader(b []byte) FileHeader {
	h := FileHeader{
		AreaID: binary.LittleEndian.Uint32(b[0:]),
		Length: binary.LittleEndian.Uint32(b[4:]),
		Pad:    binary.LittleEndian.Uint32(b[12:]),
	}
	copy(h.Version[:], b[8:12])
	return h
}

// padTo16 appends zero bytes up to the next multiple of BlockSize.
func padTo16(b []byte) []byte {
	if r := len(b) % BlockSize; r != 0 {
		b = append(b, make([]byte, BlockSize-r)...)
	}
	return b
}
