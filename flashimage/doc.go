// Package flashimage composes images for programming a device directly: the
// bootloader with its settings block (area descriptors and key table) and,
// optionally, firmware placed at the start of its areas.
//
// Example:
//
//	bl, err := hexfile.Parse("bootloader.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c, err := flashimage.New(l, bl)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := c.Add(stack); err != nil {
//	    log.Fatal(err)
//	}
//	err = hexfile.Save(c.Image(), "flash.hex", hexfile.FormatHex)
package flashimage
