package scratchpad

// CRC16 parameters.
const (
	// CRC16InitialValue is the CRC-16 seed
	CRC16InitialValue = 0xFFFF

	// crc16Mask keeps intermediate values to 16 bits
	crc16Mask = 0xFFFF
)

// CRC16 computes the CRC-16-CCITT (polynomial 0x1021, seed 0xFFFF, no final
// XOR) the bootloader checks over everything after the scratchpad header.
//
// This is the byte-at-a-time form that needs no table:
//
//	crc = (crc >> 8) | (crc << 8)
//	crc ^= b
//	crc ^= (crc & 0xF0) >> 4
//	crc ^= (crc & 0x0F) << 12
//	crc ^= (crc & 0xFF) << 5
func CRC16(data []byte) uint16 {
	return updateCRC16(CRC16InitialValue, data)
}

func updateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = (crc >> 8) | (crc << 8 & crc16Mask)
		crc ^= uint16(b)
		crc ^= (crc & 0xF0) >> 4
		crc ^= (crc & 0x0F) << 12
		crc ^= (crc & 0xFF) << 5
	}
	return crc
}
