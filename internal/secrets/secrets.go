/*
Copyright 2024 SuiteSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Store is the opaque encrypt/decrypt capability consumed by the sync
// engine. Connection credentials are stored as Encrypted blobs and only
// decrypted in memory right before an upstream call.
type Store interface {
	Encrypt(plaintext string) (Encrypted, error)
	Decrypt(blob Encrypted) (string, error)
}

// Encrypted is an AES-256-GCM ciphertext with its nonce. Both fields are
// base64 encoded so the blob round-trips through JSON columns unchanged.
type Encrypted struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

func (e Encrypted) IsZero() bool {
	return e.Ciphertext == "" && e.Nonce == ""
}

type aesStore struct {
	key []byte
}

// NewStore builds a Store from a 64-hex-character key (32 bytes).
func NewStore(hexKey string) (Store, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	return &aesStore{key: key}, nil
}

func (s *aesStore) Encrypt(plaintext string) (Encrypted, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return Encrypted{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Encrypted{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Encrypted{}, err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return Encrypted{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

func (s *aesStore) Decrypt(blob Encrypted) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(blob.Nonce)
	if err != nil {
		return "", fmt.Errorf("invalid nonce encoding: %w", err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", errors.New("invalid nonce size")
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// GenerateSecret returns a random base64 secret, used for new webhook
// secrets and worker tokens.
func GenerateSecret(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
