package protocol

// xorKey is the 4-byte rolling key every wire byte is XORed against.
// The keystream restarts at index 0 on each frame boundary.
var xorKey = [4]byte{0xa6, 0x77, 0x95, 0x7c}

// Obfuscate XORs data in-place against the keystream, with the key index
// aligned to start. The transform is its own inverse: applying it twice
// with the same start restores the original bytes. Shifting start by any
// multiple of 4 yields the identical transform.
func Obfuscate(data []byte, start int) {
	for i := range data {
		data[i] ^= xorKey[(start+i)&0x03]
	}
}
