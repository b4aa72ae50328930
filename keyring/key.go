package keyring

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"strings"

	"github.com/moffa90/go-otap/fwerr"
)

// Key sizes.
const (
	// SymmetricKeySize is the size of OMAC1 and AES-128 keys
	SymmetricKeySize = 16

	// PublicKeySize is the size of a raw P-256 public key (X‖Y)
	PublicKeySize = 64

	// MaxKeys is the most keys a layout may declare
	MaxKeys = 8
)

// KeyType selects the authentication scheme. Encryption is always AES-128-CTR.
type KeyType uint8

// Key types.
const (
	// Omac1AES128CTR authenticates with CMAC-AES128
	Omac1AES128CTR KeyType = iota + 1

	// ECDSAP256AES128CTR authenticates with an ECDSA P-256 signature over SHA-256
	ECDSAP256AES128CTR
)

// Algorithm identifiers stored in signature records.
const (
	// AuthAlgorithmOmac1 identifies CMAC-AES128
	AuthAlgorithmOmac1 = 0x01

	// AuthAlgorithmECDSAP256 identifies ECDSA P-256 with SHA-256
	AuthAlgorithmECDSAP256 = 0x02

	// EncryptAlgorithmAES128CTR identifies AES-128 in counter mode
	EncryptAlgorithmAES128CTR = 0x01
)

var keyTypeNames = map[KeyType]string{
	Omac1AES128CTR:     "omac1_aes128ctr",
	ECDSAP256AES128CTR: "sha256_ecdsa_p256_aes128ctr",
}

func (t KeyType) String() string {
	if s, ok := keyTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("keytype(%d)", uint8(t))
}

// ParseKeyType parses a key type name. The short forms "omac1" and "ecdsa"
// are accepted too.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "omac1_aes128ctr", "omac1":
		return Omac1AES128CTR, nil
	case "sha256_ecdsa_p256_aes128ctr", "ecdsa":
		return ECDSAP256AES128CTR, nil
	}
	return 0, fwerr.Cryptof("key type", "unknown key type %q", s)
}

// MaxAreas returns how many area descriptors the bootloader settings can
// hold for this key type.
func (t KeyType) MaxAreas() int {
	if t == ECDSAP256AES128CTR {
		return 16
	}
	return 8
}

// KeyTableEntrySize returns the bytes one key occupies in the settings key
// table: auth key and encryption key for OMAC1, public key and encryption key
// for ECDSA.
func (t KeyType) KeyTableEntrySize() int {
	if t == ECDSAP256AES128CTR {
		return PublicKeySize + SymmetricKeySize
	}
	return 2 * SymmetricKeySize
}

// AuthAlgorithm returns the algorithm identifier for signature records.
func (t KeyType) AuthAlgorithm() byte {
	if t == ECDSAP256AES128CTR {
		return AuthAlgorithmECDSAP256
	}
	return AuthAlgorithmOmac1
}

// KeyPair is one named authentication and encryption key set.
type KeyPair struct {
	Name string
	Type KeyType

	// Auth is the OMAC1 key. Omac1AES128CTR only.
	Auth []byte

	// Private and Public are the ECDSA halves. ECDSAP256AES128CTR only; at
	// least one must be set. Signing needs Private.
	Private *ecdsa.PrivateKey
	Public  *ecdsa.PublicKey

	// Encryption is the AES-128 key.
	Encryption []byte
}

// Validate checks key sizes, curve identity and that both ECDSA halves, when
// given, belong together.
func (k *KeyPair) Validate() error {
	op := "key " + k.Name
	if len(k.Encryption) != SymmetricKeySize {
		return fwerr.Configf(op, "encryption key must be %d bytes, got %d", SymmetricKeySize, len(k.Encryption))
	}

	switch k.Type {
	case Omac1AES128CTR:
		if len(k.Auth) != SymmetricKeySize {
			return fwerr.Configf(op, "authentication key must be %d bytes, got %d", SymmetricKeySize, len(k.Auth))
		}
		if k.Private != nil || k.Public != nil {
			return fwerr.Configf(op, "omac1 key carries ecdsa material")
		}
	case ECDSAP256AES128CTR:
		if k.Private == nil && k.Public == nil {
			return fwerr.Configf(op, "ecdsa key has neither private nor public key")
		}
		if k.Private != nil && !isP256(&k.Private.PublicKey) {
			return fwerr.Cryptof(op, "private key is not on curve P-256")
		}
		if k.Public != nil && !isP256(k.Public) {
			return fwerr.Cryptof(op, "public key is not on curve P-256")
		}
		if k.Private != nil && k.Public != nil && !k.Private.PublicKey.Equal(k.Public) {
			return fwerr.Cryptof(op, "public key does not match private key")
		}
		if len(k.Auth) != 0 {
			return fwerr.Configf(op, "ecdsa key carries a symmetric authentication key")
		}
	default:
		return fwerr.Cryptof(op, "unknown key type %d", k.Type)
	}
	return nil
}

// PublicKey returns the ECDSA public key, derived from the private key when
// only that is known.
func (k *KeyPair) PublicKey() *ecdsa.PublicKey {
	if k.Public != nil {
		return k.Public
	}
	if k.Private != nil {
		return &k.Private.PublicKey
	}
	return nil
}

// KeyTableEntry returns the bytes stored for this key in the bootloader
// settings key table.
func (k *KeyPair) KeyTableEntry() ([]byte, error) {
	entry := make([]byte, 0, k.Type.KeyTableEntrySize())
	if k.Type == ECDSAP256AES128CTR {
		pub, err := PublicKeyBytes(k.PublicKey())
		if err != nil {
			return nil, err
		}
		entry = append(entry, pub...)
	} else {
		entry = append(entry, k.Auth...)
	}
	return append(entry, k.Encryption...), nil
}

// PublicKeyBytes returns the 64-byte X‖Y form of a P-256 public key, the
// uncompressed point without its 0x04 prefix.
func PublicKeyBytes(pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, fwerr.Configf("public key", "no public key")
	}
	ek, err := pub.ECDH()
	if err != nil {
		return nil, fwerr.Wrap(fwerr.Configuration, "public key", err)
	}
	raw := ek.Bytes()
	if len(raw) != PublicKeySize+1 || raw[0] != 0x04 {
		return nil, fwerr.Configf("public key", "unexpected point encoding of %d bytes", len(raw))
	}
	return raw[1:], nil
}

func isP256(pub *ecdsa.PublicKey) bool {
	return pub.Curve != nil && pub.Curve.Params().Name == elliptic.P256().Params().Name
}

// ParseAuthKey decodes ECDSA key material given as PEM or DER. SEC 1 and
// PKCS #8 private keys and PKIX public keys are understood; PEM "EC
// PARAMETERS" blocks are skipped. Either return value may be nil.
func ParseAuthKey(material []byte) (*ecdsa.PrivateKey, *ecdsa.PublicKey, error) {
	if !strings.HasPrefix(strings.TrimSpace(string(material)), "-----BEGIN") {
		return parseDER(material)
	}

	var priv *ecdsa.PrivateKey
	var pub *ecdsa.PublicKey
	rest := []byte(strings.TrimSpace(string(material)))
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "EC PARAMETERS":
			continue
		case "EC PRIVATE KEY", "PRIVATE KEY", "PUBLIC KEY":
			p, q, err := parseDER(block.Bytes)
			if err != nil {
				return nil, nil, err
			}
			if p != nil {
				priv = p
			}
			if q != nil {
				pub = q
			}
		default:
			return nil, nil, fwerr.Configf("parse key", "unsupported PEM block %q", block.Type)
		}
	}
	if priv == nil && pub == nil {
		return nil, nil, fwerr.Configf("parse key", "no key found in PEM data")
	}
	return priv, pub, nil
}

func parseDER(der []byte) (*ecdsa.PrivateKey, *ecdsa.PublicKey, error) {
	if priv, err := x509.ParseECPrivateKey(der); err == nil {
		return priv, nil, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, nil, fwerr.Cryptof("parse key", "PKCS #8 key is %T, not ECDSA", key)
		}
		return priv, nil, nil
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, nil, fwerr.Configf("parse key", "not an ECDSA private or public key")
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, nil, fwerr.Cryptof("parse key", "public key is %T, not ECDSA", key)
	}
	return nil, pub, nil
}

// PrivatePEM encodes the private key as a SEC 1 "EC PRIVATE KEY" block.
func (k *KeyPair) PrivatePEM() (string, error) {
	if k.Private == nil {
		return "", fwerr.Configf("key "+k.Name, "no private key")
	}
	der, err := x509.MarshalECPrivateKey(k.Private)
	if err != nil {
		return "", fwerr.Wrap(fwerr.Configuration, "key "+k.Name, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})), nil
}

// PublicPEM encodes the public key as a PKIX "PUBLIC KEY" block.
func (k *KeyPair) PublicPEM() (string, error) {
	pub := k.PublicKey()
	if pub == nil {
		return "", fwerr.Configf("key "+k.Name, "no public key")
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fwerr.Wrap(fwerr.Configuration, "key "+k.Name, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// Generate creates a fresh key pair. A nil r uses crypto/rand.
func Generate(name string, t KeyType, r io.Reader) (KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	k := KeyPair{Name: name, Type: t, Encryption: make([]byte, SymmetricKeySize)}
	if _, err := io.ReadFull(r, k.Encryption); err != nil {
		return KeyPair{}, fmt.Errorf("generating encryption key: %w", err)
	}

	switch t {
	case Omac1AES128CTR:
		k.Auth = make([]byte, SymmetricKeySize)
		if _, err := io.ReadFull(r, k.Auth); err != nil {
			return KeyPair{}, fmt.Errorf("generating authentication key: %w", err)
		}
	case ECDSAP256AES128CTR:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), r)
		if err != nil {
			return KeyPair{}, fmt.Errorf("generating ecdsa key: %w", err)
		}
		k.Private = priv
	default:
		return KeyPair{}, fwerr.Cryptof("generate key", "unknown key type %d", t)
	}
	return k, nil
}
