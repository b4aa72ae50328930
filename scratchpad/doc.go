/*
Package scratchpad builds and inspects OTAP scratchpads, the authenticated
and encrypted firmware packages a bootloader installs.

A scratchpad is laid out as:

	[Tag(16)][Header(16)][AuthTag(16)][SecureHeader(16)][FileHeader(16)][Payload]...

Everything after the header is covered by its CRC-16. The secure header is the
first AES-CTR counter block. Payloads are compressed as raw deflate when
allowed, zero padded to 16 bytes and encrypted with one running keystream.

Authentication depends on the key:

  - OMAC1 keys store a CMAC-AES128 tag over the secure header and every file.
  - ECDSA P-256 keys store a zero tag. The first file is a signature slot
    (area 0xFFFFFFFF) holding an encrypted record with the signature over the
    SHA-256 of every byte after the slot.

Building:

	b, err := scratchpad.NewBuilder(key, scratchpad.WithCounterOrder(l.CounterOrder()))
	if err != nil {
	    log.Fatal(err)
	}
	for _, f := range files {
	    if err := b.AddFile(f); err != nil {
	        log.Fatal(err)
	    }
	}
	data, err := b.Finalize()

Inspecting:

	p, err := scratchpad.ParseFile("out.otap")
	if err != nil {
	    log.Fatal(err)
	}
	valid := p.Authenticate(keys...)
	files, err := p.Decrypt(keys[0])
*/
package scratchpad
