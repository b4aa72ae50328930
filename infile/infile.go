// Package infile turns input file specifications into firmware blobs tagged
// with their target area and version.
//
// A specification has the form
//
//	[VERSION|CONFIG:]AREA_ID[,nocompress][,noencrypt]:PATH
//
// VERSION is a dotted quad such as 1.2.0.15. CONFIG names a .conf/.ini or
// .yaml file whose "version" option supplies it. Without either, the version
// is 0.0.0.0. AREA_ID is decimal or 0x-prefixed hex. PATH ending in .hex is
// read as Intel HEX, anything else as raw binary.
package infile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-otap/fwerr"
	"github.com/moffa90/go-otap/hexfile"
)

// MaxFileSize is the largest accepted input blob.
const MaxFileSize = 8 * 1024 * 1024

// Version is a four-part firmware version: major, minor, maintenance,
// development.
type Version [4]uint8

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

// ParseVersion parses a dotted quad. Each part is 0..255.
func ParseVersion(s string) (Version, error) {
	var v Version
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 {
		return v, fwerr.Malformedf("parse version", "version %q must have four parts", s)
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return v, fwerr.Malformedf("parse version", "invalid version part %q in %q", p, s)
		}
		v[i] = uint8(n)
	}
	return v, nil
}

// File is one firmware blob destined for an area.
type File struct {
	// Path is where the data came from
	Path string

	AreaID  uint32
	Version Version

	// Compressible files are deflated in scratchpads
	Compressible bool

	// Encryptable files are encrypted in scratchpads
	Encryptable bool

	Data []byte
}

// Spec is a parsed input file specification.
type Spec struct {
	Path    string
	AreaID  uint32
	Version Version

	// VersionFile is set when the version comes from a configuration file
	VersionFile string

	Compressible bool
	Encryptable  bool
}

// ParseSpec parses an input file specification. Version files are read
// here so a bad version surfaces before any data is loaded.
func ParseSpec(s string) (Spec, error) {
	const op = "parse input spec"

	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return Spec{}, fwerr.Malformedf(op, "%q is not [version:]area_id:file", s)
	}
	// a two-field spec has no version
	if len(parts) == 2 {
		parts = append([]string{""}, parts...)
	}
	spec := Spec{Path: parts[2], Compressible: true, Encryptable: true}
	if spec.Path == "" {
		return Spec{}, fwerr.Malformedf(op, "%q has no file name", s)
	}

	areaFields := strings.Split(parts[1], ",")
	id, err := strconv.ParseUint(strings.TrimSpace(areaFields[0]), 0, 32)
	if err != nil {
		return Spec{}, fwerr.Malformedf(op, "invalid area id %q", areaFields[0])
	}
	spec.AreaID = uint32(id)
	for _, mod := range areaFields[1:] {
		switch strings.ToLower(strings.TrimSpace(mod)) {
		case "nocompress":
			spec.Compressible = false
		case "noencrypt":
			spec.Encryptable = false
		default:
			return Spec{}, fwerr.Malformedf(op, "unknown modifier %q", mod)
		}
	}

	switch ver := parts[0]; {
	case ver == "":
	case isConfigFile(ver):
		spec.VersionFile = ver
		if spec.Version, err = VersionFromFile(ver); err != nil {
			return Spec{}, err
		}
	default:
		if spec.Version, err = ParseVersion(ver); err != nil {
			return Spec{}, err
		}
	}
	return spec, nil
}

func isConfigFile(s string) bool {
	switch strings.ToLower(filepath.Ext(s)) {
	case ".conf", ".ini", ".yaml", ".yml":
		return true
	}
	return false
}

// VersionFromFile reads the "version" option from a configuration file. INI
// files may keep it in any section; YAML files at the top level.
func VersionFromFile(path string) (Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Version{}, fmt.Errorf("failed to read version file: %w", err)
	}

	var raw string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc struct {
			Version string `yaml:"version"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Version{}, fwerr.Wrap(fwerr.MalformedInput, "read "+path, err)
		}
		raw = doc.Version
	default:
		f, err := ini.Load(data)
		if err != nil {
			return Version{}, fwerr.Wrap(fwerr.MalformedInput, "read "+path, err)
		}
		for _, sec := range f.Sections() {
			if sec.HasKey("version") {
				raw = sec.Key("version").String()
				break
			}
		}
	}
	if raw == "" {
		return Version{}, fwerr.Malformedf("read "+path, "no version option")
	}
	return ParseVersion(raw)
}

// Load reads the data a spec points at.
func (s Spec) Load() (File, error) {
	data, err := ReadData(s.Path)
	if err != nil {
		return File{}, err
	}
	return File{
		Path:         s.Path,
		AreaID:       s.AreaID,
		Version:      s.Version,
		Compressible: s.Compressible,
		Encryptable:  s.Encryptable,
		Data:         data,
	}, nil
}

// Load parses a specification and reads its data.
//
// Example:
//
//	f, err := infile.Load("1.0.0.0:0x2:app.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
func Load(spec string) (File, error) {
	s, err := ParseSpec(spec)
	if err != nil {
		return File{}, err
	}
	return s.Load()
}

// ReadData returns the bytes of an input file. Intel HEX files are flattened
// from their lowest to highest address with zero-filled gaps.
func ReadData(path string) ([]byte, error) {
	var data []byte
	switch hexfile.FormatFromPath(path) {
	case hexfile.FormatHex:
		m, err := hexfile.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		lo, ok := m.MinAddress()
		if !ok {
			return nil, fwerr.Malformedf("read "+path, "file contains no data")
		}
		hi, _ := m.MaxAddress()
		if hi-lo > MaxFileSize {
			return nil, fwerr.Capacityf("read "+path, "data spans %d bytes, limit is %d", hi-lo, MaxFileSize)
		}
		if data, err = m.Read(lo, hi); err != nil {
			return nil, err
		}
	default:
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		if info.Size() > MaxFileSize {
			return nil, fwerr.Capacityf("read "+path, "file is %d bytes, limit is %d", info.Size(), MaxFileSize)
		}
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, fwerr.Malformedf("read "+path, "file contains no data")
	}
	return data, nil
}
