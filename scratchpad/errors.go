package scratchpad

import "fmt"

// TagMismatchError indicates the data does not start with the scratchpad tag.
type TagMismatchError struct {
	Actual []byte
}

func (e *TagMismatchError) Error() string {
	return fmt.Sprintf("not a scratchpad: tag is % X", e.Actual)
}

// LengthMismatchError indicates the header length disagrees with the data.
type LengthMismatchError struct {
	Declared uint32
	Actual   int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("length mismatch: header declares %d bytes, %d present", e.Declared, e.Actual)
}

// CRCMismatchError indicates the header CRC does not match the content.
type CRCMismatchError struct {
	Expected uint16
	Actual   uint16
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("crc mismatch: header has 0x%04X, content has 0x%04X", e.Expected, e.Actual)
}

// TruncatedFileError indicates a file header or payload runs past the end.
type TruncatedFileError struct {
	Index  int
	Offset int
	Need   int
	Have   int
}

func (e *TruncatedFileError) Error() string {
	return fmt.Sprintf("file %d at offset %d needs %d bytes, %d left", e.Index, e.Offset, e.Need, e.Have)
}
