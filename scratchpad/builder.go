package scratchpad

import (
	"bytes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/moffa90/go-otap/fwerr"
	"github.com/moffa90/go-otap/infile"
	"github.com/moffa90/go-otap/keyring"
)

// Builder assembles an authenticated, encrypted scratchpad from firmware
// files.
//
// Files are appended in order. Every payload is encrypted with one running
// AES-CTR stream whose first counter block is the random secure header, so
// the order of AddFile calls is the order the target decrypts in.
//
// With an ECDSA key the first file is a signature slot (area 0xFFFFFFFF) that
// Finalize fills once every other payload is known.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	key          keyring.KeyPair
	config       Config
	logger       *zap.Logger
	secureHeader []byte
	stream       cipher.Stream

	// body holds the file headers and payloads
	body bytes.Buffer

	// slotEnd is where the signature slot ends in body; 0 without one
	slotEnd int

	files     int
	finalized bool
}

// NewBuilder starts a scratchpad for key.
//
// The key must be able to produce the authentication: an OMAC1 key needs
// its authentication key and an ECDSA key needs its private key.
func NewBuilder(key keyring.KeyPair, opts ...Option) (*Builder, error) {
	const op = "new scratchpad"

	cfg := newConfig(opts)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if key.Type == keyring.ECDSAP256AES128CTR && key.Private == nil {
		return nil, fwerr.Configf(op, "key %q has no private key to sign with", key.Name)
	}

	secureHeader := make([]byte, SecureHeaderSize)
	if _, err := io.ReadFull(cfg.Random, secureHeader); err != nil {
		return nil, fwerr.Wrap(fwerr.Crypto, op, err)
	}
	stream, err := keyring.NewCTR(key.Encryption, secureHeader, cfg.CounterOrder)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		key:          key,
		config:       cfg,
		logger:       cfg.Logger.With(zap.String("key", key.Name)),
		secureHeader: secureHeader,
		stream:       stream,
	}
	b.logger.Debug("scratchpad started",
		zap.Stringer("type", key.Type),
		zap.Stringer("counter", cfg.CounterOrder),
		zap.Binary("secure_header", secureHeader),
	)

	if key.Type == keyring.ECDSAP256AES128CTR {
		// Placeholder slot; Finalize rewrites it with the signature.
		slot := newPayload(signatureRecord(make([]byte, keyring.SignatureSize)))
		if err := slot.encrypt(b.stream, true); err != nil {
			return nil, err
		}
		b.writeFile(FileHeader{AreaID: SignatureAreaID, Length: SignatureRecordSize}, slot.data)
		b.slotEnd = b.body.Len()
	}
	return b, nil
}

// SecureHeader returns the random initial counter block.
func (b *Builder) SecureHeader() []byte {
	return append([]byte(nil), b.secureHeader...)
}

// Files returns how many files were added, not counting the signature slot.
func (b *Builder) Files() int {
	return b.files
}

// AddFile compresses, pads and encrypts f as its flags say and appends it.
func (b *Builder) AddFile(f infile.File) error {
	const op = "add file"

	if b.finalized {
		return fwerr.Configf(op, "scratchpad already finalized")
	}
	if f.AreaID == SignatureAreaID {
		return fwerr.Configf(op, "area id 0x%08X is reserved for the signature slot", f.AreaID)
	}

	p := newPayload(f.Data)
	if f.Compressible {
		if err := p.compress(b.config.CompressionLevel); err != nil {
			return err
		}
	}
	p.pad()
	if err := p.encrypt(b.stream, f.Encryptable); err != nil {
		return err
	}

	if b.body.Len()+FileHeaderSize+len(p.data)+MinSize > MaxSize {
		return fwerr.Capacityf(op, "scratchpad would exceed %d bytes", MaxSize)
	}
	b.writeFile(FileHeader{AreaID: f.AreaID, Length: uint32(len(p.data)), Version: f.Version}, p.data)

	b.logger.Debug("file added",
		zap.String("path", f.Path),
		zap.Uint32("area_id", f.AreaID),
		zap.Stringer("version", f.Version),
		zap.Int("raw", len(f.Data)),
		zap.Int("stored", len(p.data)),
		zap.Bool("compressed", f.Compressible),
		zap.Bool("encrypted", f.Encryptable),
	)
	b.report(Progress{
		Phase:       PhaseFile,
		File:        b.files,
		AreaID:      f.AreaID,
		RawBytes:    len(f.Data),
		StoredBytes: len(p.data),
		TotalBytes:  MinSize + b.body.Len(),
	})
	b.files++
	return nil
}

// Finalize computes the authentication and returns the scratchpad. It can be
// called once.
func (b *Builder) Finalize() ([]byte, error) {
	const op = "finalize"

	if b.finalized {
		return nil, fwerr.Configf(op, "scratchpad already finalized")
	}
	if b.files == 0 {
		return nil, fwerr.Configf(op, "no files added")
	}

	body := b.body.Bytes()
	authTag := make([]byte, AuthTagSize)

	b.report(Progress{Phase: PhaseAuthenticate, File: b.files - 1, TotalBytes: MinSize + len(body)})
	switch b.key.Type {
	case keyring.ECDSAP256AES128CTR:
		if err := b.sign(body); err != nil {
			return nil, err
		}
	default:
		tag, err := keyring.CMAC(b.key.Auth, b.secureHeader, body)
		if err != nil {
			return nil, err
		}
		copy(authTag, tag)
	}

	tail := make([]byte, 0, AuthTagSize+SecureHeaderSize+len(body))
	tail = append(tail, authTag...)
	tail = append(tail, b.secureHeader...)
	tail = append(tail, body...)

	h := Header{
		Length: uint32(len(tail)),
		CRC:    CRC16(tail),
		Seq:    DefaultSeq,
		Type:   TypeBlob,
		Status: StatusErased,
	}

	out := make([]byte, 0, PrefixSize+len(tail))
	out = append(out, Tag[:]...)
	out = append(out, h.Bytes()...)
	out = append(out, tail...)

	b.finalized = true
	b.logger.Debug("scratchpad finalized",
		zap.Int("files", b.files),
		zap.Int("size", len(out)),
		zap.String("crc", fmt.Sprintf("0x%04X", h.CRC)),
	)
	b.report(Progress{Phase: PhaseComplete, File: b.files - 1, TotalBytes: len(out)})
	return out, nil
}

// sign fills the signature slot at the start of body. The signature covers
// every byte after the slot; the slot is encrypted with the start of the
// keystream.
func (b *Builder) sign(body []byte) error {
	digest := sha256.Sum256(body[b.slotEnd:])
	sig, err := keyring.SignDigest(b.key.Private, digest[:], b.config.Random)
	if err != nil {
		return err
	}

	stream, err := keyring.NewCTR(b.key.Encryption, b.secureHeader, b.config.CounterOrder)
	if err != nil {
		return err
	}
	slot := newPayload(signatureRecord(sig))
	if err := slot.encrypt(stream, true); err != nil {
		return err
	}
	copy(body[FileHeaderSize:b.slotEnd], slot.data)
	return nil
}

func (b *Builder) writeFile(h FileHeader, data []byte) {
	b.body.Write(h.Bytes())
	b.body.Write(data)
}

func (b *Builder) report(p Progress) {
	if b.config.ProgressCallback != nil {
		b.config.ProgressCallback(p)
	}
}
