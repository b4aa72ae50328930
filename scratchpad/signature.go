package scratchpad

import (
	"bytes"

	"github.com/moffa90/go-otap/fwerr"
	"github.com/moffa90/go-otap/keyring"
)

// Signature record TLV types.
const (
	tlvAuthAlgorithm    = 0x01
	tlvEncryptAlgorithm = 0x02
	tlvSignature        = 0x03
)

// SignatureRecordSize is the padded size of the signature slot payload.
//
// Format (before encryption):
//
//	[01][01][auth algorithm][02][01][encrypt algorithm][03][40][r||s (64)][zero padding]
const SignatureRecordSize = 80

const signatureRecordUsed = 3 + 3 + 2 + keyring.SignatureSize

func signatureRecord(sig []byte) []byte {
	rec := make([]byte, 0, SignatureRecordSize)
	rec = append(rec, tlvAuthAlgorithm, 1, keyring.AuthAlgorithmECDSAP256)
	rec = append(rec, tlvEncryptAlgorithm, 1, keyring.EncryptAlgorithmAES128CTR)
	rec = append(rec, tlvSignature, keyring.SignatureSize)
	rec = append(rec, sig...)
	return padTo16(rec)
}

// parseSignatureRecord checks a decrypted slot payload and returns the
// signature it carries.
func parseSignatureRecord(rec []byte) ([]byte, error) {
	const op = "parse signature record"

	if len(rec) != SignatureRecordSize {
		return nil, fwerr.Malformedf(op, "slot is %d bytes, want %d", len(rec), SignatureRecordSize)
	}
	want := []byte{
		tlvAuthAlgorithm, 1, keyring.AuthAlgorithmECDSAP256,
		tlvEncryptAlgorithm, 1, keyring.EncryptAlgorithmAES128CTR,
		tlvSignature, keyring.SignatureSize,
	}
	if !bytes.Equal(rec[:len(want)], want) {
		return nil, fwerr.Malformedf(op, "unexpected TLV prefix % X", rec[:len(want)])
	}
	for _, b := range rec[signatureRecordUsed:] {
		if b != 0 {
			return nil, fwerr.Malformedf(op, "non-zero padding")
		}
	}
	return rec[len(want):signatureRecordUsed], nil
}
