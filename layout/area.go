package layout

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/moffa90/go-otap/fwerr"
	"github.com/moffa90/go-otap/keyring"
)

// AreaType is the role of a flash area, stored in bits 2..4 of the flags word.
type AreaType uint8

// Area types.
const (
	// AreaBootloader holds the bootloader and its settings
	AreaBootloader AreaType = 0

	// AreaStack holds the radio stack firmware
	AreaStack AreaType = 1

	// AreaApp holds the application firmware
	AreaApp AreaType = 2

	// AreaPersistent holds node persistent data
	AreaPersistent AreaType = 3

	// AreaScratchpad receives OTAP scratchpads
	AreaScratchpad AreaType = 4

	// AreaUser is free for the application
	AreaUser AreaType = 5

	// AreaModemFw holds modem firmware on dual-core targets
	AreaModemFw AreaType = 6
)

var areaTypeNames = []string{"bootloader", "stack", "application", "persistent", "scratchpad", "user", "modemfw"}

func (t AreaType) String() string {
	if int(t) < len(areaTypeNames) {
		return areaTypeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Flags are the permission bits of an area.
type Flags uint8

// Area flags.
const (
	// FlagStoreVersion asks for a version header at offset 16 of the area
	FlagStoreVersion Flags = 0x01

	// FlagExternal marks an area in external flash
	FlagExternal Flags = 0x02
)

// Area word layout.
const (
	flagBits  = 0x03
	typeShift = 2
	typeMask  = 0x07
	validBits = flagBits | typeMask<<typeShift

	// DescriptorSize is the size of one area record in the bootloader settings
	DescriptorSize = 16

	// SettingsSize is the size of the bootloader settings block
	SettingsSize = 0x400
)

// Area is one region of internal or external flash.
//
// Settings is the explicit bootloader variant: it is set for the bootloader
// area, which then carries the location of the settings block, and nil for
// every other area.
type Area struct {
	Name    string
	ID      uint32
	Address uint32
	Length  uint32
	Flags   Flags
	Type    AreaType

	Settings *Settings
}

// Settings locates the bootloader settings block inside the bootloader area.
type Settings struct {
	// Offset is the distance from the area start to the settings block
	Offset uint32
}

// End returns the address one past the area.
func (a Area) End() uint64 {
	return uint64(a.Address) + uint64(a.Length)
}

// External reports whether the area is in external flash.
func (a Area) External() bool { return a.Flags&FlagExternal != 0 }

// StoresVersion reports whether files placed in the area get a version header.
func (a Area) StoresVersion() bool { return a.Flags&FlagStoreVersion != 0 }

// PackedFlags returns the flags word as the bootloader stores it.
func (a Area) PackedFlags() uint32 {
	return uint32(a.Flags) | uint32(a.Type)<<typeShift
}

// UnpackFlags splits a stored flags word into permission bits and type.
func UnpackFlags(v uint32) (Flags, AreaType, error) {
	if v&^validBits != 0 {
		return 0, 0, fwerr.Configf("area flags", "unknown bits in flags 0x%x", v)
	}
	t := AreaType(v >> typeShift & typeMask)
	if t > AreaModemFw {
		return 0, 0, fwerr.Configf("area flags", "unknown area type %d", t)
	}
	return Flags(v & flagBits), t, nil
}

// Overlaps reports whether two areas share bytes in the same flash. Areas in
// internal and external flash never overlap.
func (a Area) Overlaps(b Area) bool {
	if a.External() != b.External() {
		return false
	}
	return uint64(a.Address) < b.End() && uint64(b.Address) < a.End()
}

// Descriptor returns the 16-byte settings record:
//
//	[Address(4)][Length(4)][ID(4)][Flags|Type<<2(4)]
//
// All fields little-endian.
func (a Area) Descriptor() []byte {
	d := make([]byte, DescriptorSize)
	binary.LittleEndian.PutUint32(d[0:], a.Address)
	binary.LittleEndian.PutUint32(d[4:], a.Length)
	binary.LittleEndian.PutUint32(d[8:], a.ID)
	binary.LittleEndian.PutUint32(d[12:], a.PackedFlags())
	return d
}

func (a Area) String() string {
	var loc []string
	if a.External() {
		loc = append(loc, "external")
	} else {
		loc = append(loc, "internal")
	}
	if a.StoresVersion() {
		loc = append(loc, "versioned")
	}
	return fmt.Sprintf("%s (id 0x%08x, %s, 0x%08x..0x%08x, %s)",
		a.Name, a.ID, a.Type, a.Address, a.End(), strings.Join(loc, ", "))
}

// BootloaderArea is the bootloader area with the layout's key type resolved,
// which fixes where the key table starts.
type BootloaderArea struct {
	Area
	KeyType keyring.KeyType
}

// SettingsStart is the address of the settings block.
func (b BootloaderArea) SettingsStart() uint64 {
	return uint64(b.Address) + uint64(b.Settings.Offset)
}

// SettingsEnd is the address one past the settings block.
func (b BootloaderArea) SettingsEnd() uint64 {
	return b.SettingsStart() + SettingsSize
}

// KeyTableStart is the address of the first key record; the area
// descriptors fill the space before it.
func (b BootloaderArea) KeyTableStart() uint64 {
	return b.SettingsStart() + uint64(b.KeyType.MaxAreas()*DescriptorSize)
}
