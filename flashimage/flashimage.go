package flashimage

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/moffa90/go-otap/fwerr"
	"github.com/moffa90/go-otap/hexfile"
	"github.com/moffa90/go-otap/infile"
	"github.com/moffa90/go-otap/layout"
)

// Version header placement and fixed fields.
const (
	// VersionHeaderOffset is where the version header sits inside an area
	VersionHeaderOffset = 16

	// VersionHeaderSize is the size of the version header
	VersionHeaderSize = 20

	versionHeaderLength = 0xFFFFFFF0
	versionHeaderCRC    = 0xFFFF
	versionHeaderSeq    = 0xFF
	versionHeaderFlags  = 0x00
)

// AreaOverflowError indicates a file larger than its target area.
type AreaOverflowError struct {
	AreaID uint32
	Area   uint32
	Size   int
}

func (e *AreaOverflowError) Error() string {
	return fmt.Sprintf("file of %d bytes does not fit area 0x%08x of %d bytes", e.Size, e.AreaID, e.Area)
}

// Composer builds flash images: the bootloader with its settings block and,
// optionally, firmware placed directly in its areas.
type Composer struct {
	layout     *layout.Layout
	bootloader *hexfile.Memory
	image      *hexfile.Memory
	logger     *zap.Logger
	files      int
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New validates the layout and writes its area descriptors and key table into
// the settings block of bootloader. bootloader is not modified.
func New(l *layout.Layout, bootloader *hexfile.Memory, opts ...Option) (*Composer, error) {
	c := &Composer{layout: l, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	bl, err := l.Bootloader()
	if err != nil {
		return nil, err
	}
	mem, err := c.settings(bl, bootloader)
	if err != nil {
		return nil, err
	}
	c.bootloader = mem

	c.image = hexfile.NewMemory()
	if err := c.image.Merge(mem, false); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Composer) settings(bl layout.BootloaderArea, bootloader *hexfile.Memory) (*hexfile.Memory, error) {
	const op = "bootloader settings"

	start, end := uint64(bl.Address), bl.End()
	if lo, ok := bootloader.MinAddress(); ok {
		hi, _ := bootloader.MaxAddress()
		if lo < start || hi > end {
			return nil, fwerr.Capacityf(op, "bootloader spans 0x%08x..0x%08x, area %q is 0x%08x..0x%08x",
				lo, hi, bl.Name, start, end)
		}
	}

	mem := hexfile.NewMemory()
	if err := mem.Merge(bootloader, false); err != nil {
		return nil, err
	}
	mem.Delete(bl.SettingsStart(), bl.SettingsEnd())

	mem.Cursor = bl.SettingsStart()
	for _, a := range c.layout.Areas {
		if err := mem.Append(a.Descriptor()); err != nil {
			return nil, err
		}
	}
	if mem.Cursor > bl.KeyTableStart() {
		return nil, fwerr.Capacityf(op, "%d area descriptors overflow into the key table", len(c.layout.Areas))
	}

	mem.Cursor = bl.KeyTableStart()
	for i := range c.layout.Keys {
		entry, err := c.layout.Keys[i].KeyTableEntry()
		if err != nil {
			return nil, err
		}
		if err := mem.Append(entry); err != nil {
			return nil, err
		}
	}
	if mem.Cursor > bl.SettingsEnd() {
		return nil, fwerr.Capacityf(op, "%d keys overflow the settings block", len(c.layout.Keys))
	}

	c.logger.Debug("bootloader settings written",
		zap.String("area", bl.Name),
		zap.Uint64("settings", bl.SettingsStart()),
		zap.Int("areas", len(c.layout.Areas)),
		zap.Int("keys", len(c.layout.Keys)),
		zap.Stringer("key_type", bl.KeyType),
	)
	return mem, nil
}

// Add places the raw data of f at the start of its area and, when the area
// stores versions, writes the version header over it.
func (c *Composer) Add(f infile.File) error {
	const op = "add file"

	area, ok := c.layout.AreaByID(f.AreaID)
	if !ok {
		return fwerr.Configf(op, "no area with id 0x%08x", f.AreaID)
	}
	if uint64(len(f.Data)) > uint64(area.Length) {
		return fwerr.Wrap(fwerr.Capacity, op, &AreaOverflowError{AreaID: f.AreaID, Area: area.Length, Size: len(f.Data)})
	}

	if err := c.image.Write(uint64(area.Address), f.Data, false); err != nil {
		return err
	}
	if area.StoresVersion() {
		h := VersionHeader(f, c.layout.Flash.EraseBlock)
		if err := c.image.Write(uint64(area.Address)+VersionHeaderOffset, h, true); err != nil {
			return err
		}
	}

	c.files++
	c.logger.Debug("file placed",
		zap.String("path", f.Path),
		zap.String("area", area.Name),
		zap.Uint32("address", area.Address),
		zap.Int("size", len(f.Data)),
		zap.Bool("version_header", area.StoresVersion()),
	)
	return nil
}

// Files returns how many files were added.
func (c *Composer) Files() int {
	return c.files
}

// Image returns the full flash image. The result is shared with the
// Composer.
func (c *Composer) Image() *hexfile.Memory {
	return c.image
}

// BootloaderImage returns the bootloader with its settings block only.
func (c *Composer) BootloaderImage() *hexfile.Memory {
	return c.bootloader
}

// VersionHeader returns the header a bootloader reads to learn which
// firmware version an area holds.
//
// Format (20 bytes, little-endian):
//
//	[0xFFFFFFF0(4)][0xFFFF(2)][0xFF(1)][Flags(1)][AreaID(4)][Version(4)][WrittenSize(4)]
//
// WrittenSize is the data length rounded up to a whole number of erase
// blocks.
func VersionHeader(f infile.File, eraseBlock uint32) []byte {
	h := make([]byte, VersionHeaderSize)
	binary.LittleEndian.PutUint32(h[0:], versionHeaderLength)
	binary.LittleEndian.PutUint16(h[4:], versionHeaderCRC)
	h[6] = versionHeaderSeq
	h[7] = versionHeaderFlags
	binary.LittleEndian.PutUint32(h[8:], f.AreaID)
	copy(h[12:16], f.Version[:])
	binary.LittleEndian.PutUint32(h[16:], WrittenSize(len(f.Data), eraseBlock))
	return h
}

// WrittenSize rounds n up to a whole number of erase blocks. A length that
// is already a multiple of the erase block is kept as is. Images from host
// tools that computed (n/eraseBlock+1)*eraseBlock carry one extra block in
// that case, so the two differ only for exact multiples.
func WrittenSize(n int, eraseBlock uint32) uint32 {
	if eraseBlock == 0 {
		return uint32(n)
	}
	blocks := (uint64(n) + uint64(eraseBlock) - 1) / uint64(eraseBlock)
	return uint32(blocks * uint64(eraseBlock))
}
