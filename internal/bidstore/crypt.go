package bidstore

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Interactive-strength scrypt parameters; the record is read a handful of
// times per auction, not in a hot path.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

type sealedRecord struct {
	Version int    `json:"v"`
	KDF     string `json:"kdf"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Box     []byte `json:"box"`
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("bidstore: derive key: %w", err)
	}
	return key, nil
}

func sealRecord(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("bidstore: read salt: %w", err)
	}
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("bidstore: init cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("bidstore: read nonce: %w", err)
	}
	rec := sealedRecord{
		Version: 1,
		KDF:     "scrypt",
		Salt:    salt,
		Nonce:   nonce,
		Box:     aead.Seal(nil, nonce, plaintext, nil),
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("bidstore: encode sealed record: %w", err)
	}
	return out, nil
}

func openRecord(passphrase string, data []byte) ([]byte, error) {
	var rec sealedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: sealed envelope: %v", ErrInvalidRecord, err)
	}
	if rec.Version != 1 || rec.KDF != "scrypt" {
		return nil, fmt.Errorf("%w: unsupported envelope v%d kdf %q", ErrInvalidRecord, rec.Version, rec.KDF)
	}
	if len(rec.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrInvalidRecord, len(rec.Nonce))
	}
	key, err := deriveKey(passphrase, rec.Salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("bidstore: init cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, rec.Nonce, rec.Box, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPassphrase, err)
	}
	return plaintext, nil
}
