package scratchpad

import (
	"bytes"
	"crypto/cipher"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/moffa90/go-otap/fwerr"
)

// zlib framing around the raw deflate stream the bootloader expects.
const (
	zlibHeaderSize  = 2
	zlibTrailerSize = 4
)

// payload carries one file through the build pipeline. Each stage runs at
// most once.
type payload struct {
	data       []byte
	compressed bool
	padded     bool
	encrypted  bool
}

func newPayload(data []byte) *payload {
	return &payload{data: append([]byte(nil), data...)}
}

// compress replaces the data with its raw deflate stream.
func (p *payload) compress(level int) error {
	const op = "compress"

	if p.compressed {
		return fwerr.Configf(op, "payload already compressed")
	}
	if p.encrypted {
		return fwerr.Configf(op, "payload already encrypted")
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return fwerr.Wrap(fwerr.Configuration, op, err)
	}
	if _, err := w.Write(p.data); err != nil {
		return fwerr.Wrap(fwerr.MalformedInput, op, err)
	}
	if err := w.Close(); err != nil {
		return fwerr.Wrap(fwerr.MalformedInput, op, err)
	}

	z := buf.Bytes()
	p.data = append([]byte(nil), z[zlibHeaderSize:len(z)-zlibTrailerSize]...)
	p.compressed = true
	return nil
}

func (p *payload) pad() {
	if p.padded {
		return
	}
	p.data = padTo16(p.data)
	p.padded = true
}

// encrypt runs the data through stream. When apply is false the keystream is
// still consumed so later files stay aligned with the target's counter.
func (p *payload) encrypt(stream cipher.Stream, apply bool) error {
	if p.encrypted {
		return fwerr.Configf("encrypt", "payload already encrypted")
	}
	if apply {
		stream.XORKeyStream(p.data, p.data)
	} else {
		discard := make([]byte, len(p.data))
		stream.XORKeyStream(discard, discard)
	}
	p.encrypted = true
	return nil
}

// inflate decompresses a raw deflate stream followed only by zero padding.
// It reports false if data is not such a stream.
func inflate(data []byte) ([]byte, bool) {
	br := bytes.NewReader(data)
	r := flate.NewReader(br)
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, false
	}
	for _, b := range data[len(data)-br.Len():] {
		if b != 0 {
			return nil, false
		}
	}
	return out, true
}
