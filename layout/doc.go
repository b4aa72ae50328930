// Package layout describes how a node's flash is divided into areas and
// which keys its bootloader trusts.
//
// # Sources
//
// A layout is assembled from one or more INI or YAML files. Each file
// contributes sections; a section may be defined only once across all files,
// so a board file can hold the geometry and areas while a separate, private
// file holds the keys:
//
//	[flash]
//	length = 1048576
//	eraseblock = 4096
//
//	[area:bootloader]
//	id = 0xF0000001
//	address = 0x0
//	length = 512000
//	flags = 0x0
//	settings = 0x7c000
//
//	[key:default]
//	type = omac1_aes128ctr
//	auth = 00 11 22 33 44 55 66 77 88 99 AA BB CC DD EE FF
//	encrypt = FF EE DD CC BB AA 99 88 77 66 55 44 33 22 11 00
//
// The flags option packs the permission bits (bit 0 store version header,
// bit 1 external flash) with the area type in bits 2..4.
//
// # Validation
//
// Validate enforces what the bootloader relies on: one bootloader, stack,
// persistent and application area each, an internal application area, no
// overlapping areas within the same flash, and between one and eight keys of
// a single key type.
package layout
