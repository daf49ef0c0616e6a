// Package bidstore persists the secret half of a committed bid between the
// commit and reveal phases. The record is the only copy of the plaintext bid
// and nonce anywhere: the contract stores just the one-way commitment, so a
// lost record means the bid can never be revealed.
package bidstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	DriverFile   = "file"
	DriverMemory = "memory"
)

var (
	ErrInvalidConfig = errors.New("bidstore: invalid config")
	ErrInvalidRecord = errors.New("bidstore: invalid record")
	// ErrStorageUnavailable means the backing storage cannot be used at all.
	// Callers must surface this distinctly from "no pending bid": the user
	// may have committed and simply cannot reveal from this environment.
	ErrStorageUnavailable = errors.New("bidstore: storage unavailable")
	// ErrPassphrase means the record exists but could not be decrypted.
	ErrPassphrase = errors.New("bidstore: wrong passphrase")
)

// PendingBid is the client-local secret record for one committed bid.
// Amounts and nonces are decimal strings to avoid precision loss; the
// commitment and contract address are 0x-prefixed hex. ContractAddress scopes
// the record to one contract deployment.
type PendingBid struct {
	BidAmount       string `json:"bidAmount"`
	Nonce           string `json:"nonce"`
	Commitment      string `json:"commitment"`
	ContractAddress string `json:"contractAddress"`
}

func (b PendingBid) Validate() error {
	if strings.TrimSpace(b.BidAmount) == "" {
		return fmt.Errorf("%w: empty bid amount", ErrInvalidRecord)
	}
	if strings.TrimSpace(b.Nonce) == "" {
		return fmt.Errorf("%w: empty nonce", ErrInvalidRecord)
	}
	if strings.TrimSpace(b.Commitment) == "" {
		return fmt.Errorf("%w: empty commitment", ErrInvalidRecord)
	}
	if strings.TrimSpace(b.ContractAddress) == "" {
		return fmt.Errorf("%w: empty contract address", ErrInvalidRecord)
	}
	return nil
}

// Store is a single-slot vault: Save replaces any prior record.
type Store interface {
	Save(ctx context.Context, bid PendingBid) error
	// Load returns the stored record only when its contract address matches
	// currentContractAddress. On a mismatch the stale record is purged and
	// Load reports absent; a bid committed to a different (possibly
	// redeployed) contract must never be offered for reveal.
	Load(ctx context.Context, currentContractAddress string) (PendingBid, bool, error)
	Clear(ctx context.Context) error
}

type Config struct {
	Driver string

	// File driver fields.
	Path string
	// Passphrase enables encryption at rest when non-empty.
	Passphrase string
}

func New(cfg Config) (Store, error) {
	switch normalizeDriver(cfg.Driver) {
	case DriverMemory:
		return newMemoryStore(), nil
	case DriverFile:
		return newFileStore(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

func normalizeDriver(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return DriverFile
	}
	return v
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
