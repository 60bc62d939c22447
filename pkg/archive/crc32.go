package archive

// crcPoly is the reflected IEEE 802.3 polynomial.
const crcPoly = 0xEDB88320

var crcTable = makeCRCTable()

func makeCRCTable() [256]uint32 {
	var t [256]uint32
	for i := range t {
		c := uint32(i)
		for k := 0; k < 8; k++ {
			if c&1 == 1 {
				c = crcPoly ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}

// CRC32 returns the IEEE CRC-32 of data, as stored in ZIP headers.
func CRC32(data []byte) uint32 {
	return UpdateCRC32(0, data)
}

// UpdateCRC32 continues a checksum previously returned by CRC32 or
// UpdateCRC32 with more data.
func UpdateCRC32(crc uint32, data []byte) uint32 {
	c := ^crc
	for _, b := range data {
		c = crcTable[byte(c)^b] ^ (c >> 8)
	}
	return ^c
}
