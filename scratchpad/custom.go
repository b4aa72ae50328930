package scratchpad

import (
	"bytes"

	"github.com/moffa90/go-otap/fwerr"
)

// CustomMaxData is the largest payload of a custom readable scratchpad.
const CustomMaxData = 1024 * 1024

// customTag in the authentication field marks a custom readable scratchpad.
var customTag = bytes.Repeat([]byte{0xFF}, AuthTagSize)

// BuildCustom wraps data in a custom readable scratchpad: tag, header, an
// all-0xFF authentication field and data as is. Applications on a second MCU
// read these directly; the bootloader does not process them.
//
// data must be a non-empty multiple of 16 bytes.
func BuildCustom(data []byte) ([]byte, error) {
	const op = "build custom scratchpad"

	switch {
	case len(data) == 0:
		return nil, fwerr.Malformedf(op, "no data")
	case len(data) > CustomMaxData:
		return nil, fwerr.Capacityf(op, "%d bytes exceeds the maximum %d", len(data), CustomMaxData)
	case len(data)%BlockSize != 0:
		return nil, fwerr.Malformedf(op, "length %d is not a multiple of %d", len(data), BlockSize)
	}

	tail := make([]byte, 0, AuthTagSize+len(data))
	tail = append(tail, customTag...)
	tail = append(tail, data...)

	h := Header{
		Length: uint32(len(tail)),
		CRC:    CRC16(tail),
		Seq:    DefaultSeq,
		Type:   TypeBlob,
		Status: StatusErased,
	}

	out := make([]byte, 0, PrefixSize+len(tail))
	out = append(out, Tag[:]...)
	out = append(out, h.Bytes()...)
	return append(out, tail...), nil
}
