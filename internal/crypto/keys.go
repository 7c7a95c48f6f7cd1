// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"

	"github.com/samber/oops"
)

// KeyBits is the RSA modulus size used for all generated key pairs.
const KeyBits = 2048

// MaxOAEPPlaintext is the largest plaintext EncryptWithPublicKey accepts
// for a 2048-bit key with SHA-256 OAEP: 256 - 2*32 - 2 bytes. Callers
// must only pass short opaque identifiers, never payloads.
const MaxOAEPPlaintext = KeyBits/8 - 2*sha256.Size - 2

// GenerateKeyPair generates a 2048-bit RSA key pair and returns both
// halves PEM-encoded (public as PKIX "PUBLIC KEY", private as PKCS#1
// "RSA PRIVATE KEY").
func GenerateKeyPair() (publicPEM, privatePEM string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return "", "", oops.Code("CRYPTO_KEYGEN_FAILED").
			With("bits", KeyBits).
			Wrap(err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", oops.Code("CRYPTO_KEYGEN_FAILED").
			With("operation", "marshal public key").
			Wrap(err)
	}

	publicPEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	}))
	privatePEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	return publicPEM, privatePEM, nil
}

// ParsePublicKey parses a PEM-encoded RSA public key. Both PKIX and
// PKCS#1 encodings are accepted.
func ParsePublicKey(publicPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil {
		return nil, oops.Code("CRYPTO_BAD_KEY").Errorf("no PEM block in public key")
	}

	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, oops.Code("CRYPTO_BAD_KEY").Errorf("public key is not RSA")
		}
		return rsaPub, nil
	}

	rsaPub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("CRYPTO_BAD_KEY").
			With("operation", "parse public key").
			Wrap(err)
	}
	return rsaPub, nil
}

// ParsePrivateKey parses a PEM-encoded RSA private key. Both PKCS#1 and
// PKCS#8 encodings are accepted.
func ParsePrivateKey(privatePEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return nil, oops.Code("CRYPTO_BAD_KEY").Errorf("no PEM block in private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("CRYPTO_BAD_KEY").
			With("operation", "parse private key").
			Wrap(err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, oops.Code("CRYPTO_BAD_KEY").Errorf("private key is not RSA")
	}
	return key, nil
}

// EncryptWithPublicKey encrypts plaintext under the given public key
// using RSA-OAEP with SHA-256. Plaintext longer than MaxOAEPPlaintext
// is rejected.
func EncryptWithPublicKey(publicPEM string, plaintext []byte) ([]byte, error) {
	if len(plaintext) > MaxOAEPPlaintext {
		return nil, oops.Code("CRYPTO_PLAINTEXT_TOO_LONG").
			With("len", len(plaintext)).
			With("max", MaxOAEPPlaintext).
			Errorf("plaintext exceeds OAEP bound")
	}

	pub, err := ParsePublicKey(publicPEM)
	if err != nil {
		return nil, err
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, oops.Code("CRYPTO_ENCRYPT_FAILED").
			With("operation", "rsa oaep encrypt").
			Wrap(err)
	}
	return ciphertext, nil
}

// DecryptWithPrivateKey decrypts an RSA-OAEP/SHA-256 ciphertext with
// the given private key.
func DecryptWithPrivateKey(privatePEM string, ciphertext []byte) ([]byte, error) {
	key, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, key, ciphertext, nil)
	if err != nil {
		return nil, oops.Code("CRYPTO_DECRYPT_FAILED").
			With("operation", "rsa oaep decrypt").
			Wrap(err)
	}
	return plaintext, nil
}

// Sign produces an RSA PKCS#1 v1.5 signature over the SHA-256 digest
// of data.
func Sign(privatePEM string, data []byte) ([]byte, error) {
	key, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, oops.Code("CRYPTO_SIGN_FAILED").Wrap(err)
	}
	return sig, nil
}

// Verify checks an RSA PKCS#1 v1.5 signature over the SHA-256 digest
// of data. A clean mismatch (wrong key, tampered data or signature)
// returns (false, nil); an error is returned only when the public key
// itself cannot be used, so callers can distinguish "verification
// failed" from "verification could not be performed".
func Verify(publicPEM string, data, signature []byte) (bool, error) {
	pub, err := ParsePublicKey(publicPEM)
	if err != nil {
		return false, err
	}

	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
		return false, nil
	}
	return true, nil
}
