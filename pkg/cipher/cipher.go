package cipher

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// BlockSize is the AES block size in bytes. The IV occupies exactly one
// block, so the first 2*BlockSize hex characters of any ciphertext are the
// IV.
const BlockSize = aes.BlockSize

// Cipher encrypts person passwords for the idnDistributionPassword
// attribute. The scheme is AES-CBC with PKCS#7 padding; the output is
// hex(IV || ciphertext), with a fresh random IV per encryption.
type Cipher struct {
	key []byte
}

// New creates a cipher from a hex-encoded key string. The decoded key must
// be a valid AES key length (16, 24 or 32 bytes).
func New(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %w", err)
	}

	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("key must be 16, 24 or 32 bytes, got %d", len(key))
	}

	return &Cipher{key: key}, nil
}

// NewFromPassword creates a cipher from an ASCII key password. The deployed
// configuration stores the key hex-encoded; the decoded bytes are the raw
// password, so the password itself must have AES key length.
func NewFromPassword(password string) (*Cipher, error) {
	if password == "" {
		return nil, fmt.Errorf("key password cannot be empty")
	}

	return New(hex.EncodeToString([]byte(password)))
}

// Encrypt encrypts plaintext with a fresh random IV and returns
// hex(IV || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	return c.EncryptWithIV(plaintext, iv)
}

// EncryptWithIV encrypts plaintext with the given IV. Reusing the IV of an
// existing ciphertext makes encryption deterministic, which is how stored
// passwords are compared without decrypting them.
func (c *Cipher) EncryptWithIV(plaintext string, iv []byte) (string, error) {
	if len(iv) != BlockSize {
		return "", fmt.Errorf("iv must be %d bytes, got %d", BlockSize, len(iv))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pad([]byte(plaintext))
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, BlockSize+len(ciphertext))
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt: it splits the IV off the hex-decoded input,
// decrypts the remainder and strips the padding.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid hex ciphertext: %w", err)
	}
	if len(raw) < 2*BlockSize || len(raw)%BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not iv plus whole blocks", len(raw))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv, ciphertext := raw[:BlockSize], raw[BlockSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := unpad(plaintext)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// ExtractIV returns the IV of a value produced by Encrypt, i.e. the first
// BlockSize bytes of the hex-decoded input.
func ExtractIV(encoded string) ([]byte, error) {
	if len(encoded) < 2*BlockSize {
		return nil, fmt.Errorf("ciphertext too short for iv: %d hex chars", len(encoded))
	}

	iv, err := hex.DecodeString(encoded[:2*BlockSize])
	if err != nil {
		return nil, fmt.Errorf("invalid hex iv: %w", err)
	}
	return iv, nil
}

// pad appends PKCS#7 padding. Padding is always added: input that is
// already block-aligned gains a full padding block, so the pad length is
// between 1 and BlockSize inclusive.
func pad(data []byte) []byte {
	n := BlockSize - len(data)%BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips PKCS#7 padding, reading the pad length from the last byte.
func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unpad empty data")
	}

	n := int(data[len(data)-1])
	if n < 1 || n > BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", n)
	}
	return data[:len(data)-n], nil
}
