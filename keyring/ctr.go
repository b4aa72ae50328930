package keyring

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/moffa90/go-otap/fwerr"
)

// CounterOrder is the byte order in which the target increments the
// AES-CTR counter block.
type CounterOrder uint8

// Counter orders.
const (
	// CounterLittleEndian treats byte 0 of the counter block as least significant
	CounterLittleEndian CounterOrder = iota

	// CounterBigEndian treats byte 15 as least significant (NIST SP 800-38A)
	CounterBigEndian
)

func (o CounterOrder) String() string {
	if o == CounterBigEndian {
		return "big-endian"
	}
	return "little-endian"
}

// ctrStream is AES-CTR with a full 128-bit counter that wraps around.
type ctrStream struct {
	block     cipher.Block
	counter   [aes.BlockSize]byte
	keystream [aes.BlockSize]byte
	used      int
	order     CounterOrder
}

// NewCTR returns an AES-128-CTR stream whose initial counter block is built
// from the 16-byte secure header.
//
// The header is read as four little-endian 32-bit words. Little-endian
// targets assemble the counter from the words as they are; big-endian
// targets byte-swap each word first and read the block most significant
// byte first. Either way the first counter block equals the header bytes;
// the orders differ only in how the counter is incremented.
func NewCTR(key, secureHeader []byte, order CounterOrder) (cipher.Stream, error) {
	if len(key) != SymmetricKeySize {
		return nil, fwerr.Cryptof("aes-ctr", "key must be %d bytes, got %d", SymmetricKeySize, len(key))
	}
	if len(secureHeader) != aes.BlockSize {
		return nil, fwerr.Cryptof("aes-ctr", "initial counter must be %d bytes, got %d", aes.BlockSize, len(secureHeader))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fwerr.Wrap(fwerr.Crypto, "aes-ctr", err)
	}

	s := &ctrStream{block: block, order: order, used: aes.BlockSize}
	copy(s.counter[:], secureHeader)
	return s, nil
}

func (s *ctrStream) increment() {
	if s.order == CounterBigEndian {
		for i := len(s.counter) - 1; i >= 0; i-- {
			s.counter[i]++
			if s.counter[i] != 0 {
				return
			}
		}
		return
	}
	for i := range s.counter {
		s.counter[i]++
		if s.counter[i] != 0 {
			return
		}
	}
}

func (s *ctrStream) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("keyring: output smaller than input")
	}
	for i := range src {
		if s.used == aes.BlockSize {
			s.block.Encrypt(s.keystream[:], s.counter[:])
			s.increment()
			s.used = 0
		}
		dst[i] = src[i] ^ s.keystream[s.used]
		s.used++
	}
}
