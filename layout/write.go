package layout

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-otap/fwerr"
	"github.com/moffa90/go-otap/internal/atomicfile"
	"github.com/moffa90/go-otap/keyring"
)

// option is one serialized key/value pair of a section.
type option struct {
	key, value string
}

// sectionsOf renders the layout into sections in the order they are written:
// flash, platform, areas, keys.
func (l *Layout) sectionsOf(pem bool) ([]string, map[string][]option, error) {
	var names []string
	opts := make(map[string][]option)

	if l.Flash != nil {
		names = append(names, sectionFlash)
		opts[sectionFlash] = []option{
			{"length", strconv.FormatUint(uint64(l.Flash.Length), 10)},
			{"eraseblock", strconv.FormatUint(uint64(l.Flash.EraseBlock), 10)},
		}
	}
	if l.Platform != nil {
		names = append(names, sectionPlatform)
		opts[sectionPlatform] = []option{{"aes_little_endian", strconv.FormatBool(l.Platform.AESLittleEndian)}}
	}

	for _, a := range l.Areas {
		name := prefixArea + a.Name
		o := []option{
			{"id", fmt.Sprintf("0x%x", a.ID)},
			{"address", fmt.Sprintf("0x%x", a.Address)},
			{"length", strconv.FormatUint(uint64(a.Length), 10)},
			{"flags", fmt.Sprintf("0x%x", a.PackedFlags())},
		}
		if a.Settings != nil {
			o = append(o, option{"settings", fmt.Sprintf("0x%x", a.Settings.Offset)})
		}
		names = append(names, name)
		opts[name] = o
	}

	for i := range l.Keys {
		k := &l.Keys[i]
		name := prefixKey + k.Name
		o := []option{{"type", k.Type.String()}}
		if k.Type == keyring.Omac1AES128CTR {
			o = append(o, option{"auth", FormatHexBytes(k.Auth)})
		} else {
			auth, err := ecdsaMaterial(k, pem)
			if err != nil {
				return nil, nil, err
			}
			o = append(o, option{"auth", auth})
		}
		o = append(o, option{"encrypt", FormatHexBytes(k.Encryption)})
		names = append(names, name)
		opts[name] = o
	}
	return names, opts, nil
}

// ecdsaMaterial serializes the private key when there is one, otherwise the
// public key.
func ecdsaMaterial(k *keyring.KeyPair, pem bool) (string, error) {
	if pem {
		if k.Private != nil {
			return k.PrivatePEM()
		}
		return k.PublicPEM()
	}

	var der []byte
	var err error
	if k.Private != nil {
		der, err = x509.MarshalECPrivateKey(k.Private)
	} else {
		der, err = x509.MarshalPKIXPublicKey(k.PublicKey())
	}
	if err != nil {
		return "", fwerr.Wrap(fwerr.Configuration, "key "+k.Name, err)
	}
	return FormatHexBytes(der), nil
}

// WriteINI writes the layout as INI. ECDSA keys are written as hex DER so
// every value fits on one line.
func (l *Layout) WriteINI(w io.Writer) error {
	names, opts, err := l.sectionsOf(false)
	if err != nil {
		return err
	}

	f := ini.Empty()
	for _, name := range names {
		sec, err := f.NewSection(name)
		if err != nil {
			return fmt.Errorf("creating section [%s]: %w", name, err)
		}
		for _, o := range opts[name] {
			if _, err := sec.NewKey(o.key, o.value); err != nil {
				return fmt.Errorf("writing %s in [%s]: %w", o.key, name, err)
			}
		}
	}
	_, err = f.WriteTo(w)
	return err
}

// WriteYAML writes the layout as YAML. ECDSA keys are written as PEM blocks.
func (l *Layout) WriteYAML(w io.Writer) error {
	names, opts, err := l.sectionsOf(true)
	if err != nil {
		return err
	}

	root := &yaml.Node{Kind: yaml.MappingNode}
	areas := &yaml.Node{Kind: yaml.MappingNode}
	keys := &yaml.Node{Kind: yaml.MappingNode}

	for _, name := range names {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for _, o := range opts[name] {
			v := &yaml.Node{Kind: yaml.ScalarNode, Value: o.value}
			if strings.Contains(o.value, "\n") {
				v.Style = yaml.LiteralStyle
			}
			m.Content = append(m.Content, scalar(o.key), v)
		}
		switch {
		case strings.HasPrefix(name, prefixArea):
			areas.Content = append(areas.Content, scalar(strings.TrimPrefix(name, prefixArea)), m)
		case strings.HasPrefix(name, prefixKey):
			keys.Content = append(keys.Content, scalar(strings.TrimPrefix(name, prefixKey)), m)
		default:
			root.Content = append(root.Content, scalar(name), m)
		}
	}
	if len(areas.Content) > 0 {
		root.Content = append(root.Content, scalar("areas"), areas)
	}
	if len(keys.Content) > 0 {
		root.Content = append(root.Content, scalar("keys"), keys)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return err
	}
	return enc.Close()
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}

// Save writes the layout to path, as YAML for .yaml and .yml files and as INI
// otherwise. The file is replaced atomically.
func (l *Layout) Save(path string) error {
	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = l.WriteYAML(&buf)
	default:
		err = l.WriteINI(&buf)
	}
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, buf.Bytes(), 0o600)
}
