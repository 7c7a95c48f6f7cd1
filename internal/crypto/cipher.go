// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
)

// ErrDecryptionFailed is returned when a symmetric ciphertext cannot be
// decrypted: wrong key, truncated input, or invalid padding. The cases
// are deliberately not distinguished.
var ErrDecryptionFailed = errors.New("decryption failed")

// DeriveKey derives keyLen bytes from a password and salt using
// PBKDF2 with SHA-256. Deterministic for fixed inputs; clients run this,
// the server never does.
func DeriveKey(password string, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
}

// Hash returns the SHA-256 digest of data.
func Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, oops.Code("CRYPTO_RANDOM_FAILED").
			With("requested_bytes", n).
			Wrap(err)
	}
	return b, nil
}

// EncryptWithKey encrypts plaintext with AES-CBC under key. A fresh
// random IV is generated per call and prepended to the returned
// ciphertext, so identical inputs never produce identical outputs.
// The plaintext is PKCS#7 padded to the block size.
func EncryptWithKey(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, oops.Code("CRYPTO_BAD_KEY").
			With("key_len", len(key)).
			Wrap(err)
	}

	iv, err := RandomBytes(aes.BlockSize)
	if err != nil {
		return nil, err
	}

	padded := padPKCS7(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// DecryptWithKey reverses EncryptWithKey. The first block of the input
// is the IV. Returns ErrDecryptionFailed on truncated input or invalid
// padding.
func DecryptWithKey(key, ivPrefixed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, oops.Code("CRYPTO_BAD_KEY").
			With("key_len", len(key)).
			Wrap(err)
	}

	if len(ivPrefixed) < 2*aes.BlockSize || len(ivPrefixed)%aes.BlockSize != 0 {
		return nil, oops.Code("CRYPTO_DECRYPT_FAILED").
			With("len", len(ivPrefixed)).
			Wrap(ErrDecryptionFailed)
	}

	iv, ciphertext := ivPrefixed[:aes.BlockSize], ivPrefixed[aes.BlockSize:]
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, ok := unpadPKCS7(padded, aes.BlockSize)
	if !ok {
		return nil, oops.Code("CRYPTO_DECRYPT_FAILED").
			With("operation", "strip padding").
			Wrap(ErrDecryptionFailed)
	}
	return plaintext, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
