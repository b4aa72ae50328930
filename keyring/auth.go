package keyring

import (
	"crypto/aes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/subtle"
	"io"
	"math/big"

	"github.com/aead/cmac"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/moffa90/go-otap/fwerr"
)

// Authentication sizes.
const (
	// TagSize is the OMAC1 tag size and the size of the scratchpad auth field
	TagSize = 16

	// SignatureSize is the raw r‖s ECDSA P-256 signature size
	SignatureSize = 64
)

// CMAC computes CMAC-AES128 (OMAC1) over the concatenation of parts.
func CMAC(key []byte, parts ...[]byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fwerr.Wrap(fwerr.Crypto, "cmac", err)
	}
	h, err := cmac.New(block)
	if err != nil {
		return nil, fwerr.Wrap(fwerr.Crypto, "cmac", err)
	}
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil), nil
}

// VerifyCMAC reports whether tag is the CMAC of parts under key. The
// comparison runs in constant time.
func VerifyCMAC(key, tag []byte, parts ...[]byte) bool {
	want, err := CMAC(key, parts...)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(want, tag) == 1
}

// SignDigest signs a SHA-256 digest and returns the raw 64-byte r‖s form
// bootloaders verify. A nil r uses crypto/rand.
func SignDigest(priv *ecdsa.PrivateKey, digest []byte, r io.Reader) ([]byte, error) {
	if priv == nil {
		return nil, fwerr.Cryptof("sign", "no private key")
	}
	if r == nil {
		r = rand.Reader
	}
	der, err := ecdsa.SignASN1(r, priv, digest)
	if err != nil {
		return nil, fwerr.Wrap(fwerr.Crypto, "sign", err)
	}

	var inner cryptobyte.String
	sigR, sigS := new(big.Int), new(big.Int)
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(sigR) || !inner.ReadASN1Integer(sigS) || !inner.Empty() {
		return nil, fwerr.Cryptof("sign", "malformed signature encoding")
	}

	raw := make([]byte, SignatureSize)
	sigR.FillBytes(raw[:SignatureSize/2])
	sigS.FillBytes(raw[SignatureSize/2:])
	return raw, nil
}

// VerifyDigest checks a raw r‖s signature over a SHA-256 digest.
func VerifyDigest(pub *ecdsa.PublicKey, digest, sig []byte) bool {
	if pub == nil || len(sig) != SignatureSize {
		return false
	}
	sigR := new(big.Int).SetBytes(sig[:SignatureSize/2])
	sigS := new(big.Int).SetBytes(sig[SignatureSize/2:])

	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(sigR)
		b.AddASN1BigInt(sigS)
	})
	der, err := b.Bytes()
	if err != nil {
		return false
	}
	return ecdsa.VerifyASN1(pub, digest, der)
}
