/*
Package cipher encrypts person passwords for storage in the directory.

Passwords never reach the directory in clear text. The source database
delivers them in clear, the reconciler encrypts them here and writes the
result into the idnDistributionPassword attribute; downstream consumers that
hold the shared key decrypt on their side.

# Scheme

	┌──────────── PASSWORD ENCRYPTION ────────────┐
	│                                             │
	│  plaintext ──► PKCS#7 pad ──► AES-CBC ──┐   │
	│                    ▲                    │   │
	│     random IV ─────┘                    ▼   │
	│              hex( IV || ciphertext ) ──►    │
	│                                             │
	└─────────────────────────────────────────────┘

  - AES in CBC mode, 16-byte blocks
  - PKCS#7 padding, always applied: block-aligned input gains a full
    padding block, so the pad length is 1..16
  - Output is hex(IV || ciphertext); the first 32 hex characters are the IV

The key is configured hex-encoded. Historically the hex string is the
encoding of an ASCII key password, which makes the decoded bytes the raw AES
key; both New (hex string) and NewFromPassword (ASCII string) produce the
same cipher for the same underlying key.

# Deterministic comparison

Stored and incoming passwords are compared without decryption: the IV of the
stored value (ExtractIV) is reused to re-encrypt the incoming clear text
(EncryptWithIV), and the two hex strings are compared. Equal strings mean
the password is unchanged. On a real change a fresh random IV is drawn, so
identical passwords in different entries still differ on the wire.

# Usage

	c, err := cipher.NewFromPassword(keyPassword)
	if err != nil {
		return err
	}

	encoded, err := c.Encrypt("hunter2")
	// encoded: "8f4a...{96 hex chars}"

	iv, _ := cipher.ExtractIV(stored)
	probe, _ := c.EncryptWithIV(incoming, iv)
	unchanged := probe == stored
*/
package cipher
