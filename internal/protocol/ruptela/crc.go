package ruptela

// Checksum computes CRC-16/Kermit over data: reflected polynomial 0x8408,
// zero seed, no final xor. Check value over "123456789" is 0x2189. Computed
// bit by bit; record batches are small enough that a table buys nothing.
func Checksum(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
