package hexfile

import "fmt"

// OverlapError indicates a write landed on data that is already present.
type OverlapError struct {
	Start    uint64
	End      uint64
	Existing Range
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("data at 0x%08x..0x%08x overlaps existing range 0x%08x..0x%08x",
		e.Start, e.End, e.Existing.Start, e.Existing.End())
}

// RecordError indicates an invalid Intel HEX record.
type RecordError struct {
	Line   int
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}
