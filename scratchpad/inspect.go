package scratchpad

import (
	"bytes"
	"crypto/sha256"
	"os"

	"go.uber.org/zap"

	"github.com/moffa90/go-otap/fwerr"
	"github.com/moffa90/go-otap/infile"
	"github.com/moffa90/go-otap/keyring"
)

// Byte offsets inside a scratchpad.
const (
	authTagOffset      = PrefixSize
	secureHeaderOffset = authTagOffset + AuthTagSize
	bodyOffset         = secureHeaderOffset + SecureHeaderSize
)

// Entry is one file header and its stored payload.
type Entry struct {
	FileHeader

	// Offset is where the file header starts in the scratchpad
	Offset int

	// Payload is the stored, possibly compressed and encrypted, data
	Payload []byte
}

// Signature reports whether the entry is the ECDSA signature slot.
func (e Entry) Signature() bool {
	return e.AreaID == SignatureAreaID
}

// Package is a parsed scratchpad.
type Package struct {
	Header       Header
	AuthTag      []byte
	SecureHeader []byte

	// Entries lists the files in order, the signature slot included
	Entries []Entry

	// SignedOffset is where the signed content starts, just after the
	// signature slot. Zero when there is no slot.
	SignedOffset int

	// CustomData is the content of a custom readable scratchpad; nil
	// otherwise
	CustomData []byte

	raw    []byte
	config Config
	logger *zap.Logger
}

// ParseFile reads and parses a scratchpad file.
func ParseFile(path string, opts ...Option) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fwerr.Wrap(fwerr.MalformedInput, "read scratchpad", err)
	}
	return Parse(data, opts...)
}

// Parse checks the framing of a scratchpad and splits it into entries. It
// verifies the tag, declared length and CRC but not the authentication; see
// Package.Authenticate.
func Parse(data []byte, opts ...Option) (*Package, error) {
	const op = "parse scratchpad"

	cfg := newConfig(opts)
	if len(data) < MinSize {
		return nil, fwerr.Malformedf(op, "%d bytes is shorter than the minimum %d", len(data), MinSize)
	}
	if len(data) > MaxSize {
		return nil, fwerr.Malformedf(op, "%d bytes exceeds the maximum %d", len(data), MaxSize)
	}
	if !bytes.Equal(data[:TagSize], Tag[:]) {
		return nil, fwerr.Wrap(fwerr.MalformedInput, op, &TagMismatchError{Actual: append([]byte(nil), data[:TagSize]...)})
	}

	h := parseHeader(data[TagSize:PrefixSize])
	if int64(h.Length) != int64(len(data)-PrefixSize) {
		return nil, fwerr.Wrap(fwerr.MalformedInput, op, &LengthMismatchError{Declared: h.Length, Actual: len(data) - PrefixSize})
	}
	if h.Length%BlockSize != 0 {
		return nil, fwerr.Malformedf(op, "length %d is not a multiple of %d", h.Length, BlockSize)
	}
	if crc := CRC16(data[PrefixSize:]); crc != h.CRC {
		return nil, fwerr.Wrap(fwerr.MalformedInput, op, &CRCMismatchError{Expected: h.CRC, Actual: crc})
	}

	p := &Package{
		Header:  h,
		AuthTag: data[authTagOffset:secureHeaderOffset],
		raw:     data,
		config:  cfg,
		logger:  cfg.Logger,
	}
	if bytes.Equal(p.AuthTag, customTag) {
		p.CustomData = data[secureHeaderOffset:]
		p.logger.Debug("custom scratchpad parsed", zap.Int("size", len(data)))
		return p, nil
	}
	p.SecureHeader = data[secureHeaderOffset:bodyOffset]

	for off := bodyOffset; off < len(data); {
		i := len(p.Entries)
		if left := len(data) - off; left < FileHeaderSize {
			return nil, fwerr.Wrap(fwerr.MalformedInput, op, &TruncatedFileError{Index: i, Offset: off, Need: FileHeaderSize, Have: left})
		}
		fh := parseFileHeader(data[off : off+FileHeaderSize])
		start := off + FileHeaderSize
		if left := len(data) - start; int64(fh.Length) > int64(left) {
			return nil, fwerr.Wrap(fwerr.MalformedInput, op, &TruncatedFileError{Index: i, Offset: off, Need: int(fh.Length), Have: left})
		}
		end := start + int(fh.Length)

		e := Entry{FileHeader: fh, Offset: off, Payload: data[start:end]}
		if e.Signature() {
			if i != 0 {
				return nil, fwerr.Malformedf(op, "signature slot at entry %d, must be first", i)
			}
			p.SignedOffset = end
		}
		p.Entries = append(p.Entries, e)
		off = end
	}
	if len(p.Entries) == 0 {
		return nil, fwerr.Malformedf(op, "no files")
	}

	p.logger.Debug("scratchpad parsed",
		zap.Int("size", len(data)),
		zap.Int("entries", len(p.Entries)),
		zap.Bool("signed", p.Signed()),
	)
	return p, nil
}

// Bytes returns the scratchpad as parsed.
func (p *Package) Bytes() []byte {
	return p.raw
}

// Signed reports whether the scratchpad has an ECDSA signature slot.
func (p *Package) Signed() bool {
	return p.SignedOffset != 0
}

// Custom reports whether this is a custom readable scratchpad.
func (p *Package) Custom() bool {
	return p.CustomData != nil
}

// Files returns the entries that carry firmware, skipping the signature slot.
func (p *Package) Files() []Entry {
	files := make([]Entry, 0, len(p.Entries))
	for _, e := range p.Entries {
		if !e.Signature() {
			files = append(files, e)
		}
	}
	return files
}

// Authenticate returns the names of the keys that authenticate the
// scratchpad, in the order given. No keys, or no matching key, gives an
// empty result rather than an error.
func (p *Package) Authenticate(keys ...keyring.KeyPair) []string {
	var names []string
	for _, k := range keys {
		ok := p.verify(k)
		p.logger.Debug("authentication",
			zap.String("key", k.Name),
			zap.Stringer("type", k.Type),
			zap.Bool("valid", ok),
		)
		if ok {
			names = append(names, k.Name)
		}
	}
	return names
}

func (p *Package) verify(k keyring.KeyPair) bool {
	if p.Custom() || len(k.Encryption) != keyring.SymmetricKeySize {
		return false
	}

	if !p.Signed() {
		if k.Type != keyring.Omac1AES128CTR {
			return false
		}
		return keyring.VerifyCMAC(k.Auth, p.AuthTag, p.raw[secureHeaderOffset:])
	}

	if k.Type != keyring.ECDSAP256AES128CTR {
		return false
	}
	if !bytes.Equal(p.AuthTag, make([]byte, AuthTagSize)) {
		return false
	}
	pub := k.PublicKey()
	if pub == nil {
		return false
	}
	if slot := p.Entries[0]; slot.Version != (infile.Version{}) || slot.Pad != 0 {
		return false
	}

	stream, err := keyring.NewCTR(k.Encryption, p.SecureHeader, p.config.CounterOrder)
	if err != nil {
		return false
	}
	slot := p.Entries[0].Payload
	rec := make([]byte, len(slot))
	stream.XORKeyStream(rec, slot)
	sig, err := parseSignatureRecord(rec)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(p.raw[p.SignedOffset:])
	return keyring.VerifyDigest(pub, digest[:], sig)
}

// Encryption tells how a file's payload relates to the keystream.
type Encryption uint8

// Encryption states. The wire format carries no per-file flag, so only a
// payload that inflates, or a caller hint, settles the question.
const (
	// EncryptionUnknown means neither the decrypted nor the stored payload
	// inflated. Data holds the decrypted bytes and Stored the original ones.
	EncryptionUnknown Encryption = iota

	// EncryptionApplied means the payload was encrypted
	EncryptionApplied

	// EncryptionSkipped means the payload was stored as plaintext
	EncryptionSkipped
)

func (e Encryption) String() string {
	switch e {
	case EncryptionApplied:
		return "encrypted"
	case EncryptionSkipped:
		return "plain"
	}
	return "unknown"
}

// Plaintext is one decrypted file.
type Plaintext struct {
	FileHeader

	Data []byte

	// Stored is the payload as it appears in the scratchpad
	Stored []byte

	// Inflated is true when Data was decompressed. Otherwise Data is the
	// payload as decrypted, padding included.
	Inflated bool

	Encryption Encryption
}

// Decrypt decrypts and decompresses every file with key, which must
// authenticate the scratchpad.
//
// Files in plainAreas are taken as stored without encryption and returned
// as stored, inflated when possible. For other files a payload that does not
// inflate after decryption but inflates as stored was a compressed file
// marked not to be encrypted. Payloads that inflate neither way are returned
// decrypted with EncryptionUnknown.
func (p *Package) Decrypt(key keyring.KeyPair, plainAreas ...uint32) ([]Plaintext, error) {
	const op = "decrypt scratchpad"

	if !p.verify(key) {
		return nil, fwerr.Cryptof(op, "key %q does not authenticate this scratchpad", key.Name)
	}
	stream, err := keyring.NewCTR(key.Encryption, p.SecureHeader, p.config.CounterOrder)
	if err != nil {
		return nil, err
	}
	plain := make(map[uint32]bool, len(plainAreas))
	for _, id := range plainAreas {
		plain[id] = true
	}

	var out []Plaintext
	for _, e := range p.Entries {
		dec := make([]byte, len(e.Payload))
		stream.XORKeyStream(dec, e.Payload)
		if e.Signature() {
			continue
		}

		pt := Plaintext{FileHeader: e.FileHeader, Data: dec, Stored: e.Payload}
		switch {
		case plain[e.AreaID]:
			pt.Data, pt.Encryption = e.Payload, EncryptionSkipped
			if data, ok := inflate(e.Payload); ok {
				pt.Data, pt.Inflated = data, true
			}
		default:
			if data, ok := inflate(dec); ok {
				pt.Data, pt.Inflated, pt.Encryption = data, true, EncryptionApplied
			} else if data, ok := inflate(e.Payload); ok {
				pt.Data, pt.Inflated, pt.Encryption = data, true, EncryptionSkipped
			}
		}
		p.logger.Debug("file decrypted",
			zap.Uint32("area_id", e.AreaID),
			zap.Int("stored", len(e.Payload)),
			zap.Int("plain", len(pt.Data)),
			zap.Bool("inflated", pt.Inflated),
			zap.Stringer("encryption", pt.Encryption),
		)
		out = append(out, pt)
	}
	return out, nil
}
