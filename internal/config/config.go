// Package config resolves the settings shared by every CLI: the auction
// contract address, the RPC endpoint, and the caller's account. Flags win
// over environment variables; a missing contract address is its own error so
// read-only commands can degrade instead of exiting.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
)

const (
	EnvContractAddress = "VEILBID_CONTRACT_ADDRESS"
	EnvRPCURL          = "VEILBID_RPC_URL"
	EnvAccountAddress  = "VEILBID_ACCOUNT_ADDRESS"
	EnvAccountPubKey   = "VEILBID_ACCOUNT_PUBLIC_KEY"
)

var (
	ErrNotConfigured = errors.New("config: contract address not configured")
	ErrInvalidValue  = errors.New("config: invalid value")
)

// Resolve returns the flag value when set, otherwise the environment value.
func Resolve(flagValue, envName string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(envName))
}

// Contract resolves and validates the auction contract address. It returns
// the parsed felt plus the normalized hex form used to scope the bid vault.
func Contract(flagValue string) (*felt.Felt, string, error) {
	raw := Resolve(flagValue, EnvContractAddress)
	if raw == "" {
		return nil, "", ErrNotConfigured
	}
	f, err := ParseFelt(raw)
	if err != nil {
		return nil, "", fmt.Errorf("%w: contract address %q: %v", ErrInvalidValue, raw, err)
	}
	return f, f.String(), nil
}

// ParseFelt parses a 0x-prefixed hex field element and rejects zero.
func ParseFelt(raw string) (*felt.Felt, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		return nil, errors.New("missing 0x prefix")
	}
	f, err := utils.HexToFelt(raw)
	if err != nil {
		return nil, err
	}
	if f.IsZero() {
		return nil, errors.New("zero address")
	}
	return f, nil
}

// DefaultVaultPath is where the file-driver bid vault lives when no --vault
// flag is given.
func DefaultVaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".veilbid/pending_bid.json"
	}
	return filepath.Join(home, ".veilbid", "pending_bid.json")
}
