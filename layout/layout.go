package layout

import (
	"github.com/moffa90/go-otap/fwerr"
	"github.com/moffa90/go-otap/keyring"
)

// Flash is the internal flash geometry.
type Flash struct {
	Length     uint32
	EraseBlock uint32
}

// Platform holds target properties that affect the image format.
type Platform struct {
	// AESLittleEndian is true when the target increments the AES-CTR
	// counter as a little-endian number.
	AESLittleEndian bool
}

// Layout is a complete flash layout: geometry, areas in declaration order and
// named keys.
type Layout struct {
	// Flash is nil until a source declares it.
	Flash *Flash

	// Platform is nil when no source declares it, which means a
	// little-endian counter.
	Platform *Platform

	Areas []Area
	Keys  []keyring.KeyPair
}

// CounterOrder returns the AES-CTR counter order of the target.
func (l *Layout) CounterOrder() keyring.CounterOrder {
	if l.Platform != nil && !l.Platform.AESLittleEndian {
		return keyring.CounterBigEndian
	}
	return keyring.CounterLittleEndian
}

// AreaByID returns the first area with the given id.
func (l *Layout) AreaByID(id uint32) (Area, bool) {
	for _, a := range l.Areas {
		if a.ID == id {
			return a, true
		}
	}
	return Area{}, false
}

// AreaByType returns the first area of the given type.
func (l *Layout) AreaByType(t AreaType) (Area, bool) {
	for _, a := range l.Areas {
		if a.Type == t {
			return a, true
		}
	}
	return Area{}, false
}

// ScratchpadArea returns the dedicated scratchpad area, or the application
// area on targets that stage scratchpads there.
func (l *Layout) ScratchpadArea() (Area, bool) {
	if a, ok := l.AreaByType(AreaScratchpad); ok {
		return a, true
	}
	return l.AreaByType(AreaApp)
}

// Key returns the key with the given name.
func (l *Layout) Key(name string) (keyring.KeyPair, bool) {
	for _, k := range l.Keys {
		if k.Name == name {
			return k, true
		}
	}
	return keyring.KeyPair{}, false
}

// KeyType returns the key type shared by all keys.
func (l *Layout) KeyType() (keyring.KeyType, error) {
	if len(l.Keys) == 0 {
		return 0, fwerr.Configf("keys", "no keys defined")
	}
	t := l.Keys[0].Type
	for _, k := range l.Keys[1:] {
		if k.Type != t {
			return 0, fwerr.Configf("keys", "key %q is %s but key %q is %s", l.Keys[0].Name, t, k.Name, k.Type)
		}
	}
	return t, nil
}

// Bootloader returns the bootloader area with the key type resolved.
func (l *Layout) Bootloader() (BootloaderArea, error) {
	a, ok := l.AreaByType(AreaBootloader)
	if !ok {
		return BootloaderArea{}, fwerr.Configf("bootloader", "no bootloader area")
	}
	if a.Settings == nil {
		return BootloaderArea{}, fwerr.Configf("bootloader", "area %q has no settings offset", a.Name)
	}
	kt, err := l.KeyType()
	if err != nil {
		return BootloaderArea{}, err
	}
	return BootloaderArea{Area: a, KeyType: kt}, nil
}

// Validate checks the layout is one a bootloader accepts.
func (l *Layout) Validate() error {
	const op = "validate layout"

	if l.Flash == nil {
		return fwerr.Configf(op, "no flash geometry")
	}
	if l.Flash.Length == 0 || l.Flash.EraseBlock == 0 {
		return fwerr.Configf(op, "flash length and erase block size must be non-zero")
	}

	if len(l.Keys) == 0 || len(l.Keys) > keyring.MaxKeys {
		return fwerr.Configf(op, "%d keys defined, need 1..%d", len(l.Keys), keyring.MaxKeys)
	}
	kt, err := l.KeyType()
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(l.Keys))
	for i := range l.Keys {
		if names[l.Keys[i].Name] {
			return fwerr.Configf(op, "duplicate key %q", l.Keys[i].Name)
		}
		names[l.Keys[i].Name] = true
		if err := l.Keys[i].Validate(); err != nil {
			return err
		}
	}

	if len(l.Areas) == 0 || len(l.Areas) > kt.MaxAreas() {
		return fwerr.Configf(op, "%d areas defined, need 1..%d for %s keys", len(l.Areas), kt.MaxAreas(), kt)
	}

	counts := make(map[AreaType]int)
	for _, a := range l.Areas {
		counts[a.Type]++
		if a.Type == AreaBootloader {
			if a.Flags != 0 {
				return fwerr.Configf(op, "bootloader area %q must be internal without version header", a.Name)
			}
			if a.Settings == nil {
				return fwerr.Configf(op, "bootloader area %q has no settings offset", a.Name)
			}
			if uint64(a.Settings.Offset)+SettingsSize > uint64(a.Length) {
				return fwerr.Configf(op, "bootloader settings at offset 0x%x do not fit area %q", a.Settings.Offset, a.Name)
			}
		} else if a.Settings != nil {
			return fwerr.Configf(op, "area %q is not a bootloader area but has settings", a.Name)
		}
	}
	for _, t := range []AreaType{AreaBootloader, AreaStack, AreaPersistent, AreaApp} {
		switch counts[t] {
		case 1:
		case 0:
			return fwerr.Configf(op, "no %s area", t)
		default:
			return fwerr.Configf(op, "%d %s areas, need exactly one", counts[t], t)
		}
	}
	if app, _ := l.AreaByType(AreaApp); app.External() {
		return fwerr.Configf(op, "application area %q must be in internal flash", app.Name)
	}

	for i := range l.Areas {
		for j := i + 1; j < len(l.Areas); j++ {
			if l.Areas[i].Overlaps(l.Areas[j]) {
				return fwerr.Configf(op, "area %q overlaps area %q", l.Areas[i].Name, l.Areas[j].Name)
			}
		}
	}
	return nil
}
