package scratchpad

// Progress phases.
const (
	// PhaseFile reports a file appended to the builder
	PhaseFile = "file"

	// PhaseAuthenticate reports the CMAC or signature being computed
	PhaseAuthenticate = "authenticate"

	// PhaseComplete reports the finished scratchpad
	PhaseComplete = "complete"
)

// Progress describes one step of building a scratchpad.
type Progress struct {
	// Phase is one of PhaseFile, PhaseAuthenticate or PhaseComplete
	Phase string

	// File is the 0-based index of the file just added, not counting the
	// signature slot
	File int

	// AreaID is the target area of the file just added
	AreaID uint32

	// RawBytes is the input size of the file just added
	RawBytes int

	// StoredBytes is the payload size after compression and padding
	StoredBytes int

	// TotalBytes is the scratchpad size so far
	TotalBytes int
}

// ProgressCallback receives build progress. It runs synchronously and should
// return quickly.
//
// Example:
//
//	b, _ := scratchpad.NewBuilder(key,
//	    scratchpad.WithProgressCallback(func(p scratchpad.Progress) {
//	        fmt.Printf("[%s] area 0x%08X: %d -> %d bytes\n",
//	            p.Phase, p.AreaID, p.RawBytes, p.StoredBytes)
//	    }),
//	)
type ProgressCallback func(Progress)
