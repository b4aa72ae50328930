package layout

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-otap/fwerr"
	"github.com/moffa90/go-otap/keyring"
)

// Section names.
const (
	sectionFlash    = "flash"
	sectionPlatform = "platform"
	prefixArea      = "area:"
	prefixKey       = "key:"
)

// LoadOption configures Load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	overlay map[string]string
	logger  *zap.Logger
}

// WithOverlay substitutes symbolic area ids. An area whose id value is a key
// of overlay takes the mapped value instead.
//
// Example:
//
//	l, err := layout.Load([]string{"base.ini"},
//	    layout.WithOverlay(map[string]string{"APP_AREA_ID": "0x83744C01"}),
//	)
func WithOverlay(overlay map[string]string) LoadOption {
	return func(c *loadConfig) {
		c.overlay = overlay
	}
}

// WithLogger sets the logger that receives warnings about ignored sections.
func WithLogger(logger *zap.Logger) LoadOption {
	return func(c *loadConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// section is one named group of options from any source format.
type section struct {
	name   string
	source string
	values map[string]string
}

// Load reads and merges layout files. Files ending in .yaml or .yml are YAML;
// everything else is INI. A section may appear in only one file.
func Load(paths []string, opts ...LoadOption) (*Layout, error) {
	d := newDecoder(opts)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read layout: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = d.addYAML(path, data)
		default:
			err = d.addINI(path, data)
		}
		if err != nil {
			return nil, err
		}
	}
	return d.layout, nil
}

// LoadINI decodes a single INI document.
func LoadINI(data []byte, opts ...LoadOption) (*Layout, error) {
	d := newDecoder(opts)
	if err := d.addINI("<ini>", data); err != nil {
		return nil, err
	}
	return d.layout, nil
}

// LoadYAML decodes a single YAML document.
func LoadYAML(data []byte, opts ...LoadOption) (*Layout, error) {
	d := newDecoder(opts)
	if err := d.addYAML("<yaml>", data); err != nil {
		return nil, err
	}
	return d.layout, nil
}

func newDecoder(opts []LoadOption) *decoder {
	cfg := loadConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &decoder{layout: &Layout{}, seen: make(map[string]string), cfg: cfg}
}

func (d *decoder) addINI(src string, data []byte) error {
	sections, err := iniSections(src, data)
	if err != nil {
		return err
	}
	return d.addAll(sections)
}

func (d *decoder) addYAML(src string, data []byte) error {
	sections, err := yamlSections(src, data, d.cfg.logger)
	if err != nil {
		return err
	}
	return d.addAll(sections)
}

func (d *decoder) addAll(sections []section) error {
	for _, s := range sections {
		if err := d.add(s); err != nil {
			return err
		}
	}
	return nil
}

func iniSections(src string, data []byte) ([]section, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		SpaceBeforeInlineComment:   true,
	}, data)
	if err != nil {
		return nil, fwerr.Wrap(fwerr.Configuration, "parse "+src, err)
	}

	var out []section
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection && len(sec.Keys()) == 0 {
			continue
		}
		s := section{name: sec.Name(), source: src, values: make(map[string]string)}
		for _, k := range sec.Keys() {
			s.values[k.Name()] = k.Value()
		}
		out = append(out, s)
	}
	return out, nil
}

// yamlSections maps a YAML document onto the INI section model:
//
//	flash: {length: ..., eraseblock: ...}
//	platform: {aes_little_endian: true}
//	areas:
//	  bootloader: {id: ..., address: ..., ...}
//	keys:
//	  default: {type: ..., auth: ..., encrypt: ...}
func yamlSections(src string, data []byte, logger *zap.Logger) ([]section, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fwerr.Wrap(fwerr.Configuration, "parse "+src, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fwerr.Configf("parse "+src, "top level is not a mapping")
	}

	var out []section
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, root.Content[i+1]
		switch key {
		case sectionFlash, sectionPlatform:
			values, err := yamlScalars(src, key, val)
			if err != nil {
				return nil, err
			}
			out = append(out, section{name: key, source: src, values: values})
		case "areas", "keys":
			if val.Kind != yaml.MappingNode {
				return nil, fwerr.Configf("parse "+src, "%s is not a mapping", key)
			}
			prefix := prefixArea
			if key == "keys" {
				prefix = prefixKey
			}
			for j := 0; j+1 < len(val.Content); j += 2 {
				name := val.Content[j].Value
				values, err := yamlScalars(src, prefix+name, val.Content[j+1])
				if err != nil {
					return nil, err
				}
				out = append(out, section{name: prefix + name, source: src, values: values})
			}
		default:
			logger.Warn("ignoring unknown layout entry", zap.String("source", src), zap.String("entry", key))
		}
	}
	return out, nil
}

func yamlScalars(src, name string, n *yaml.Node) (map[string]string, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fwerr.Configf("parse "+src, "%s is not a mapping", name)
	}
	values := make(map[string]string, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i].Value, n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fwerr.Configf("parse "+src, "%s.%s is not a scalar", name, k)
		}
		values[k] = v.Value
	}
	return values, nil
}

type decoder struct {
	layout *Layout
	seen   map[string]string
	cfg    loadConfig
}

func (d *decoder) add(s section) error {
	known := s.name == sectionFlash || s.name == sectionPlatform ||
		strings.HasPrefix(s.name, prefixArea) || strings.HasPrefix(s.name, prefixKey)
	if !known {
		d.cfg.logger.Warn("ignoring unknown layout section",
			zap.String("source", s.source), zap.String("section", s.name))
		return nil
	}
	if prev, ok := d.seen[s.name]; ok {
		return fwerr.Configf("load layout", "section [%s] in %s already defined in %s", s.name, s.source, prev)
	}
	d.seen[s.name] = s.source

	var err error
	switch {
	case s.name == sectionFlash:
		err = d.flash(s)
	case s.name == sectionPlatform:
		err = d.platform(s)
	case strings.HasPrefix(s.name, prefixArea):
		err = d.area(s)
	default:
		err = d.key(s)
	}
	if err != nil {
		return fmt.Errorf("%s: [%s]: %w", s.source, s.name, err)
	}
	return nil
}

func (d *decoder) warnUnused(s section, used ...string) {
	var extra []string
	for k := range s.values {
		found := false
		for _, u := range used {
			if k == u {
				found = true
				break
			}
		}
		if !found {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		d.cfg.logger.Warn("ignoring unknown layout options",
			zap.String("source", s.source), zap.String("section", s.name), zap.Strings("options", extra))
	}
}

func required(s section, key string) (string, error) {
	v, ok := s.values[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", fwerr.Configf("load layout", "missing option %q", key)
	}
	return strings.TrimSpace(v), nil
}

// parseNumber accepts decimal and 0x-prefixed hex, as configuration files
// written by hand mix both.
func parseNumber(s, what string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fwerr.Configf("load layout", "invalid %s %q", what, s)
	}
	return uint32(v), nil
}

func requiredNumber(s section, key string) (uint32, error) {
	v, err := required(s, key)
	if err != nil {
		return 0, err
	}
	return parseNumber(v, key)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "true", "on":
		return true, nil
	case "0", "no", "false", "off":
		return false, nil
	}
	return false, fwerr.Configf("load layout", "invalid boolean %q", s)
}

// ParseHexBytes decodes hex bytes separated by spaces or commas, for example
// "01 02 0A" or "01,02,0a".
func ParseHexBytes(s string) ([]byte, error) {
	joined := strings.Join(strings.Fields(strings.ReplaceAll(s, ",", " ")), "")
	b, err := hex.DecodeString(joined)
	if err != nil {
		return nil, fwerr.Configf("load layout", "invalid hex bytes: %v", err)
	}
	return b, nil
}

// FormatHexBytes is the inverse of ParseHexBytes: upper case, space separated.
func FormatHexBytes(b []byte) string {
	var buf bytes.Buffer
	for i, c := range b {
		if i > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(&buf, "%02X", c)
	}
	return buf.String()
}

func (d *decoder) flash(s section) error {
	length, err := requiredNumber(s, "length")
	if err != nil {
		return err
	}
	erase, err := requiredNumber(s, "eraseblock")
	if err != nil {
		return err
	}
	d.warnUnused(s, "length", "eraseblock")
	d.layout.Flash = &Flash{Length: length, EraseBlock: erase}
	return nil
}

func (d *decoder) platform(s section) error {
	p := &Platform{AESLittleEndian: true}
	if v, ok := s.values["aes_little_endian"]; ok {
		le, err := parseBool(v)
		if err != nil {
			return err
		}
		p.AESLittleEndian = le
	}
	d.warnUnused(s, "aes_little_endian")
	d.layout.Platform = p
	return nil
}

func (d *decoder) area(s section) error {
	a := Area{Name: strings.TrimPrefix(s.name, prefixArea)}

	idStr, err := required(s, "id")
	if err != nil {
		return err
	}
	if sub, ok := d.cfg.overlay[idStr]; ok {
		idStr = sub
	}
	if a.ID, err = parseNumber(idStr, "id"); err != nil {
		return err
	}
	if a.Address, err = requiredNumber(s, "address"); err != nil {
		return err
	}
	if a.Length, err = requiredNumber(s, "length"); err != nil {
		return err
	}
	packed, err := requiredNumber(s, "flags")
	if err != nil {
		return err
	}
	if a.Flags, a.Type, err = UnpackFlags(packed); err != nil {
		return err
	}

	if a.Type == AreaBootloader {
		offset, err := requiredNumber(s, "settings")
		if err != nil {
			return err
		}
		a.Settings = &Settings{Offset: offset}
	}
	d.warnUnused(s, "id", "address", "length", "flags", "settings")

	d.layout.Areas = append(d.layout.Areas, a)
	return nil
}

func (d *decoder) key(s section) error {
	k := keyring.KeyPair{Name: strings.TrimPrefix(s.name, prefixKey), Type: keyring.Omac1AES128CTR}

	if v, ok := s.values["type"]; ok {
		t, err := keyring.ParseKeyType(v)
		if err != nil {
			return err
		}
		k.Type = t
	}

	auth, err := required(s, "auth")
	if err != nil {
		return err
	}
	enc, err := required(s, "encrypt")
	if err != nil {
		return err
	}
	if k.Encryption, err = ParseHexBytes(enc); err != nil {
		return err
	}

	if k.Type == keyring.Omac1AES128CTR {
		if k.Auth, err = ParseHexBytes(auth); err != nil {
			return err
		}
	} else {
		if k.Private, k.Public, err = parseECDSAMaterial(auth); err != nil {
			return err
		}
		if v, ok := s.values["auth_public"]; ok && strings.TrimSpace(v) != "" {
			_, pub, err := parseECDSAMaterial(v)
			if err != nil {
				return err
			}
			if pub == nil {
				return fwerr.Configf("load layout", "auth_public holds a private key")
			}
			k.Public = pub
		}
	}
	d.warnUnused(s, "type", "auth", "auth_public", "encrypt")

	if err := k.Validate(); err != nil {
		return err
	}
	d.layout.Keys = append(d.layout.Keys, k)
	return nil
}

func parseECDSAMaterial(v string) (*ecdsa.PrivateKey, *ecdsa.PublicKey, error) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "-----BEGIN") {
		return keyring.ParseAuthKey([]byte(v))
	}
	der, err := ParseHexBytes(v)
	if err != nil {
		return nil, nil, err
	}
	return keyring.ParseAuthKey(der)
}
