// Package keyring holds scratchpad key material and the primitives applied
// with it: AES-128-CTR with a target-specific counter order, CMAC-AES128
// (OMAC1), and ECDSA P-256 signatures in raw r‖s form.
//
// Two key types exist. Omac1AES128CTR pairs a 16-byte CMAC key with a
// 16-byte AES key. ECDSAP256AES128CTR pairs a P-256 key (private for
// signing, public for the bootloader key table) with a 16-byte AES key.
//
//	k, err := keyring.Generate("default", keyring.ECDSAP256AES128CTR, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	entry, _ := k.KeyTableEntry() // 64-byte public key ‖ 16-byte AES key
package keyring
