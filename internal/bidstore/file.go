package bidstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type fileStore struct {
	mu         sync.Mutex
	path       string
	passphrase string
}

func newFileStore(cfg Config) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("%w: file driver requires a path", ErrInvalidConfig)
	}
	return &fileStore{path: path, passphrase: cfg.Passphrase}, nil
}

func (f *fileStore) Save(_ context.Context, bid PendingBid) error {
	if err := bid.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(bid)
	if err != nil {
		return fmt.Errorf("bidstore: encode record: %w", err)
	}
	if f.passphrase != "" {
		payload, err = sealRecord(f.passphrase, payload)
		if err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrStorageUnavailable, dir, err)
	}
	// Write-then-rename so a crash mid-save never leaves a torn record; the
	// secret must survive anything between commit submission and reveal.
	tmp, err := os.CreateTemp(dir, ".pending-bid-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: chmod: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (f *fileStore) Load(_ context.Context, currentContractAddress string) (PendingBid, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return PendingBid{}, false, nil
	}
	if err != nil {
		return PendingBid{}, false, fmt.Errorf("%w: read: %v", ErrStorageUnavailable, err)
	}
	if f.passphrase != "" {
		data, err = openRecord(f.passphrase, data)
		if err != nil {
			return PendingBid{}, false, err
		}
	}

	var bid PendingBid
	if err := json.Unmarshal(data, &bid); err != nil {
		// A corrupt record cannot be revealed anyway; drop it so the state
		// reads as "no pending bid" rather than failing forever.
		_ = os.Remove(f.path)
		return PendingBid{}, false, fmt.Errorf("%w: decode: %v", ErrInvalidRecord, err)
	}
	if !sameAddress(bid.ContractAddress, currentContractAddress) {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return PendingBid{}, false, fmt.Errorf("%w: purge stale record: %v", ErrStorageUnavailable, err)
		}
		return PendingBid{}, false, nil
	}
	return bid, true, nil
}

func (f *fileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove: %v", ErrStorageUnavailable, err)
	}
	return nil
}
