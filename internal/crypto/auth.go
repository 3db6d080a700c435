package crypto

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blowfish"
)

// DefaultAuthKey is the Blowfish key game clients encrypt their login
// payload with. Shared by both game generations.
const DefaultAuthKey = "27501fd04e6b82c831024dac5c6305221974deb9388a2190" +
	"1d576cbbe2f377ef23d75486010f37819afe6c321a0146d2" +
	"1544ec365bf7289a"

// AuthCipher wraps Blowfish ECB for login payloads and user-key
// derivation.
type AuthCipher struct {
	cipher *blowfish.Cipher
}

// NewAuthCipher creates the cipher from a hex-encoded key.
func NewAuthCipher(hexKey string) (*AuthCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding auth cipher key: %w", err)
	}
	c, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating blowfish cipher: %w", err)
	}
	return &AuthCipher{cipher: c}, nil
}

// Decrypt returns the ECB decryption of data. The input is left
// untouched: login handlers need the raw bytes for the user-hash
// lookup alongside the decrypted view. Length must be a multiple of
// the block size.
func (c *AuthCipher) Decrypt(data []byte) ([]byte, error) {
	if len(data)%blowfish.BlockSize != 0 {
		return nil, fmt.Errorf(
			"blowfish decrypt: length %d is not a multiple of %d",
			len(data), blowfish.BlockSize)
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += blowfish.BlockSize {
		c.cipher.Decrypt(out[i:i+blowfish.BlockSize], data[i:i+blowfish.BlockSize])
	}
	return out, nil
}

// Encrypt returns the ECB encryption of data. Length must be a
// multiple of the block size.
func (c *AuthCipher) Encrypt(data []byte) ([]byte, error) {
	if len(data)%blowfish.BlockSize != 0 {
		return nil, fmt.Errorf(
			"blowfish encrypt: length %d is not a multiple of %d",
			len(data), blowfish.BlockSize)
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += blowfish.BlockSize {
		c.cipher.Encrypt(out[i:i+blowfish.BlockSize], data[i:i+blowfish.BlockSize])
	}
	return out, nil
}

// UserKey derives the stored account key from the 16-byte client
// hash. Registration stores it and authentication looks it up, so
// both sides must apply the same transform.
func (c *AuthCipher) UserKey(clientHash []byte) (string, error) {
	enc, err := c.Encrypt(clientHash)
	if err != nil {
		return "", fmt.Errorf("deriving user key: %w", err)
	}
	return hex.EncodeToString(enc), nil
}
