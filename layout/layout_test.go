package layout

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/moffa90/go-otap/fwerr"
	"github.com/moffa90/go-otap/keyring"
)

const testINI = `
[flash]
length = 1048576
eraseblock = 4096

[area:bootloader]
id = 0xF0000001
address = 0x00000
length = 0x7D000
flags = 0x0
settings = 0x7C000

[area:stack]
id = 1
address = 0x7D000
length = 0x40000
flags = 0x5

[area:app]
id = 2
address = 0xFD000
length = 0x2000
flags = 0x9

[area:persistent]
id = 0x3
address = 0xFF000
length = 0x1000
flags = 0xc

[key:default]
auth = 00 01 02 03 04 05 06 07 08 09 0A 0B 0C 0D 0E 0F
encrypt = 10,11,12,13,14,15,16,17,18,19,1a,1b,1c,1d,1e,1f
`

func loadTestLayout(t *testing.T) *Layout {
	t.Helper()
	l, err := LoadINI([]byte(testINI))
	if err != nil {
		t.Fatalf("LoadINI() error = %v", err)
	}
	return l
}

func TestLoadINI(t *testing.T) {
	l := loadTestLayout(t)

	if err := l.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if diff := cmp.Diff(&Flash{Length: 1 << 20, EraseBlock: 4096}, l.Flash); diff != "" {
		t.Errorf("flash mismatch (-want +got):\n%s", diff)
	}

	want := []Area{
		{Name: "bootloader", ID: 0xF0000001, Address: 0, Length: 0x7D000, Type: AreaBootloader, Settings: &Settings{Offset: 0x7C000}},
		{Name: "stack", ID: 1, Address: 0x7D000, Length: 0x40000, Flags: FlagStoreVersion, Type: AreaStack},
		{Name: "app", ID: 2, Address: 0xFD000, Length: 0x2000, Flags: FlagStoreVersion, Type: AreaApp},
		{Name: "persistent", ID: 3, Address: 0xFF000, Length: 0x1000, Type: AreaPersistent},
	}
	if diff := cmp.Diff(want, l.Areas); diff != "" {
		t.Errorf("areas mismatch (-want +got):\n%s", diff)
	}

	k, ok := l.Key("default")
	if !ok {
		t.Fatal("key default not found")
	}
	if k.Type != keyring.Omac1AES128CTR {
		t.Errorf("key type = %v, want omac1 (default for untagged keys)", k.Type)
	}
	if k.Encryption[0] != 0x10 || k.Encryption[15] != 0x1F {
		t.Errorf("encryption key = % X", k.Encryption)
	}
	if l.CounterOrder() != keyring.CounterLittleEndian {
		t.Error("missing platform section should mean a little-endian counter")
	}
}

func TestBootloaderArea(t *testing.T) {
	l := loadTestLayout(t)
	bl, err := l.Bootloader()
	if err != nil {
		t.Fatal(err)
	}
	if bl.SettingsStart() != 0x7C000 || bl.SettingsEnd() != 0x7C400 {
		t.Errorf("settings = 0x%x..0x%x, want 0x7c000..0x7c400", bl.SettingsStart(), bl.SettingsEnd())
	}
	if bl.KeyTableStart() != 0x7C000+8*16 {
		t.Errorf("KeyTableStart() = 0x%x, want 0x%x", bl.KeyTableStart(), 0x7C000+8*16)
	}

	bl.KeyType = keyring.ECDSAP256AES128CTR
	if bl.KeyTableStart() != 0x7C000+16*16 {
		t.Errorf("ecdsa KeyTableStart() = 0x%x, want 0x%x", bl.KeyTableStart(), 0x7C000+16*16)
	}
}

func TestLookups(t *testing.T) {
	l := loadTestLayout(t)
	if a, ok := l.AreaByID(2); !ok || a.Name != "app" {
		t.Errorf("AreaByID(2) = %v, %v", a, ok)
	}
	if _, ok := l.AreaByID(99); ok {
		t.Error("AreaByID(99) found an area")
	}
	if a, ok := l.ScratchpadArea(); !ok || a.Type != AreaApp {
		t.Errorf("ScratchpadArea() should fall back to the app area, got %v", a)
	}
	l.Areas = append(l.Areas, Area{Name: "spad", ID: 4, Address: 0, Length: 0x10000, Flags: FlagExternal, Type: AreaScratchpad})
	if a, _ := l.ScratchpadArea(); a.Name != "spad" {
		t.Errorf("ScratchpadArea() = %v, want spad", a)
	}
}

func TestValidate(t *testing.T) {
	k16 := bytes.Repeat([]byte{1}, 16)
	ecdsaKey, err := keyring.Generate("e", keyring.ECDSAP256AES128CTR, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(l *Layout)
		errMsg string
	}{
		{"valid", func(l *Layout) {}, ""},
		{"no flash", func(l *Layout) { l.Flash = nil }, "no flash geometry"},
		{"zero erase block", func(l *Layout) { l.Flash.EraseBlock = 0 }, "non-zero"},
		{"no keys", func(l *Layout) { l.Keys = nil }, "0 keys"},
		{"too many keys", func(l *Layout) {
			for i := 0; i < 8; i++ {
				l.Keys = append(l.Keys, keyring.KeyPair{Name: string(rune('a' + i)), Type: keyring.Omac1AES128CTR, Auth: k16, Encryption: k16})
			}
		}, "9 keys"},
		{"mixed key types", func(l *Layout) { l.Keys = append(l.Keys, ecdsaKey) }, "key \"default\" is omac1_aes128ctr"},
		{"duplicate key name", func(l *Layout) { l.Keys = append(l.Keys, l.Keys[0]) }, "duplicate key"},
		{"missing app", func(l *Layout) { l.Areas = append(l.Areas[:2], l.Areas[3]) }, "no application area"},
		{"two stacks", func(l *Layout) {
			l.Areas = append(l.Areas, Area{Name: "stack2", ID: 9, Address: 0, Length: 16, Flags: FlagExternal, Type: AreaStack})
		}, "2 stack areas"},
		{"external app", func(l *Layout) { l.Areas[2].Flags |= FlagExternal }, "must be in internal flash"},
		{"versioned bootloader", func(l *Layout) { l.Areas[0].Flags = FlagStoreVersion }, "must be internal without version header"},
		{"bootloader without settings", func(l *Layout) { l.Areas[0].Settings = nil }, "no settings offset"},
		{"settings past area end", func(l *Layout) { l.Areas[0].Settings.Offset = 0x7CF00 }, "do not fit"},
		{"settings on plain area", func(l *Layout) { l.Areas[1].Settings = &Settings{} }, "has settings"},
		{"overlap", func(l *Layout) { l.Areas[2].Address = 0xFE800 }, "overlaps"},
		{"too many areas", func(l *Layout) {
			for i := 0; i < 5; i++ {
				l.Areas = append(l.Areas, Area{Name: "u", ID: uint32(10 + i), Address: uint32(i) * 0x1000, Length: 0x1000, Flags: FlagExternal, Type: AreaUser})
			}
		}, "9 areas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := loadTestLayout(t)
			tt.mutate(l)
			err := l.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
			}
			if !errors.Is(err, fwerr.Configuration) {
				t.Errorf("expected configuration kind, got %v", err)
			}
		})
	}
}

func TestOverlapRule(t *testing.T) {
	a := Area{Address: 0, Length: 100}
	b := Area{Address: 50, Length: 100}
	if !a.Overlaps(b) || !b.Overlaps(a) {
		t.Error("[0,100) and [50,150) in the same flash must overlap")
	}
	b.Flags = FlagExternal
	if a.Overlaps(b) {
		t.Error("internal and external areas never overlap")
	}
	c := Area{Address: 100, Length: 10}
	if a.Overlaps(c) {
		t.Error("adjacent areas do not overlap")
	}
}

func TestUnpackFlags(t *testing.T) {
	tests := []struct {
		in      uint32
		flags   Flags
		typ     AreaType
		wantErr bool
	}{
		{0x00, 0, AreaBootloader, false},
		{0x09, FlagStoreVersion, AreaApp, false},
		{0x12, FlagExternal, AreaScratchpad, false},
		{0x1B, FlagStoreVersion | FlagExternal, AreaModemFw, false},
		{0x1C, 0, 0, true},
		{0x20, 0, 0, true},
	}
	for _, tt := range tests {
		flags, typ, err := UnpackFlags(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("UnpackFlags(0x%x) expected error", tt.in)
			}
			continue
		}
		if err != nil || flags != tt.flags || typ != tt.typ {
			t.Errorf("UnpackFlags(0x%x) = %v, %v, %v", tt.in, flags, typ, err)
		}
		if got := (Area{Flags: flags, Type: typ}).PackedFlags(); got != tt.in {
			t.Errorf("PackedFlags() = 0x%x, want 0x%x", got, tt.in)
		}
	}
}

func TestDescriptor(t *testing.T) {
	a := Area{ID: 0x11223344, Address: 0x7D000, Length: 0x40000, Flags: FlagStoreVersion, Type: AreaStack}
	want := []byte{
		0x00, 0xD0, 0x07, 0x00,
		0x00, 0x00, 0x04, 0x00,
		0x44, 0x33, 0x22, 0x11,
		0x05, 0x00, 0x00, 0x00,
	}
	if got := a.Descriptor(); !bytes.Equal(got, want) {
		t.Errorf("Descriptor() = % X, want % X", got, want)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{"missing id", "[area:x]\naddress = 0\nlength = 1\nflags = 0x8\n", `missing option "id"`},
		{"bad number", "[flash]\nlength = lots\neraseblock = 1\n", `invalid length "lots"`},
		{"bad flags", "[area:x]\nid = 1\naddress = 0\nlength = 1\nflags = 0x40\n", "unknown bits"},
		{"bootloader needs settings", "[area:bl]\nid = 1\naddress = 0\nlength = 1\nflags = 0\n", `missing option "settings"`},
		{"short key", "[key:k]\nauth = 00 11\nencrypt = 00 11\n", "must be 16 bytes"},
		{"bad hex", "[key:k]\nauth = zz\nencrypt = 00\n", "invalid hex bytes"},
		{"unknown key type", "[key:k]\ntype = rsa\nauth = 00\nencrypt = 00\n", "unknown key type"},
		{"bad platform", "[platform]\naes_little_endian = maybe\n", "invalid boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadINI([]byte(tt.input))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestLoadMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	board := filepath.Join(dir, "board.ini")
	keys := filepath.Join(dir, "keys.yaml")
	dup := filepath.Join(dir, "dup.ini")

	parts := strings.SplitN(testINI, "[key:default]", 2)
	if err := os.WriteFile(board, []byte(parts[0]+"[platform]\naes_little_endian = no\n[debug]\nx = 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	keyYAML := "keys:\n  default:\n    type: omac1\n    auth: 00 01 02 03 04 05 06 07 08 09 0A 0B 0C 0D 0E 0F\n    encrypt: 000102030405060708090a0b0c0d0e0f\n"
	if err := os.WriteFile(keys, []byte(keyYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dup, []byte("[flash]\nlength = 1\neraseblock = 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zapcore.WarnLevel)
	l, err := Load([]string{board, keys}, WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if l.CounterOrder() != keyring.CounterBigEndian {
		t.Error("platform section did not select a big-endian counter")
	}
	if n := logs.FilterMessage("ignoring unknown layout section").Len(); n != 1 {
		t.Errorf("logged %d unknown-section warnings, want 1", n)
	}

	_, err = Load([]string{board, dup})
	if err == nil || !strings.Contains(err.Error(), "already defined") {
		t.Fatalf("expected duplicate section error, got %v", err)
	}
	if !errors.Is(err, fwerr.Configuration) {
		t.Errorf("expected configuration kind, got %v", err)
	}
}

func TestOverlay(t *testing.T) {
	input := strings.Replace(testINI, "id = 2\n", "id = APP_ID\n", 1)
	l, err := LoadINI([]byte(input), WithOverlay(map[string]string{"APP_ID": "0x83744C01"}))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := l.AreaByID(0x83744C01); !ok {
		t.Error("overlay id was not substituted")
	}

	if _, err := LoadINI([]byte(input)); err == nil {
		t.Error("unresolved symbolic id should fail")
	}
}

func TestINIRoundTrip(t *testing.T) {
	l := loadTestLayout(t)
	l.Platform = &Platform{AESLittleEndian: false}

	var first bytes.Buffer
	if err := l.WriteINI(&first); err != nil {
		t.Fatal(err)
	}
	out := first.String()
	for _, want := range []string{"[area:bootloader]", "settings", "0x7c000", "00 01 02 03", "omac1_aes128ctr"} {
		if !strings.Contains(out, want) {
			t.Errorf("serialized layout missing %q:\n%s", want, out)
		}
	}

	back, err := LoadINI(first.Bytes())
	if err != nil {
		t.Fatalf("reloading: %v\n%s", err, out)
	}
	if diff := cmp.Diff(l.Areas, back.Areas); diff != "" {
		t.Errorf("areas mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(l.Platform, back.Platform); diff != "" {
		t.Errorf("platform mismatch (-want +got):\n%s", diff)
	}

	var second bytes.Buffer
	if err := back.WriteINI(&second); err != nil {
		t.Fatal(err)
	}
	if first.String() != second.String() {
		t.Errorf("second serialization differs:\n%s\n---\n%s", first.String(), second.String())
	}
}

func TestYAMLRoundTripECDSA(t *testing.T) {
	l := loadTestLayout(t)
	k, err := keyring.Generate("signing", keyring.ECDSAP256AES128CTR, nil)
	if err != nil {
		t.Fatal(err)
	}
	l.Keys = []keyring.KeyPair{k}

	var buf bytes.Buffer
	if err := l.WriteYAML(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "BEGIN EC PRIVATE KEY") {
		t.Errorf("expected a PEM private key in:\n%s", buf.String())
	}

	back, err := LoadYAML(buf.Bytes())
	if err != nil {
		t.Fatalf("reloading: %v\n%s", err, buf.String())
	}
	if err := back.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if diff := cmp.Diff(l.Areas, back.Areas); diff != "" {
		t.Errorf("areas mismatch (-want +got):\n%s", diff)
	}
	got, ok := back.Key("signing")
	if !ok || got.Type != keyring.ECDSAP256AES128CTR || !got.Private.Equal(k.Private) || !bytes.Equal(got.Encryption, k.Encryption) {
		t.Error("ecdsa key did not round trip")
	}

	// INI carries the same key as hex DER
	var ini bytes.Buffer
	if err := back.WriteINI(&ini); err != nil {
		t.Fatal(err)
	}
	again, err := LoadINI(ini.Bytes())
	if err != nil {
		t.Fatalf("reloading INI: %v\n%s", err, ini.String())
	}
	if got, _ := again.Key("signing"); got.Private == nil || !got.Private.Equal(k.Private) {
		t.Error("ecdsa key did not survive INI")
	}
}

func TestSave(t *testing.T) {
	l := loadTestLayout(t)
	for _, name := range []string{"out.ini", "out.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		if err := l.Save(path); err != nil {
			t.Fatalf("Save(%s) error = %v", name, err)
		}
		back, err := Load([]string{path})
		if err != nil {
			t.Fatalf("Load(%s) error = %v", name, err)
		}
		if diff := cmp.Diff(l.Areas, back.Areas); diff != "" {
			t.Errorf("%s areas mismatch (-want +got):\n%s", name, diff)
		}
	}
}
