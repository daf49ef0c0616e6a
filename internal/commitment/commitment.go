// Package commitment implements the commit-reveal bid codec: secret nonce
// generation and the Poseidon commitment the auction contract verifies
// reveal_bid against. The hash must match the contract bit-for-bit; any
// divergence in algorithm, input order, or encoding makes every reveal
// unverifiable on chain.
package commitment

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	junocrypto "github.com/NethermindEth/juno/core/crypto"
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
)

// NonceByteLen bounds generated nonces to 31 bytes (248 bits), one byte of
// headroom under the 252-bit felt cap so no nonce can wrap the field modulus.
const NonceByteLen = 31

var (
	ErrInvalidBid   = errors.New("commitment: invalid bid amount")
	ErrInvalidNonce = errors.New("commitment: invalid nonce")
	ErrEntropy      = errors.New("commitment: entropy source failed")
)

// maxBid is the exclusive upper bound for bid amounts (contract ABI u128).
var maxBid = new(big.Int).Lsh(big.NewInt(1), 128)

// maxNonce is the exclusive upper bound for nonces accepted at compute time.
var maxNonce = new(big.Int).Lsh(big.NewInt(1), 8*NonceByteLen)

// GenerateNonce draws a fresh secret nonce from the operating system's
// cryptographically secure source. Every call yields an independent value;
// nonces must never be reused across bids.
func GenerateNonce() (*felt.Felt, error) {
	buf := make([]byte, NonceByteLen)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return new(felt.Felt).SetBytes(buf), nil
}

// Compute returns Poseidon(bidAmount, nonce), the exact pairwise Poseidon
// hash the Cairo contract recomputes when verifying reveal_bid. The bid is
// validated against the contract's u128 width and the nonce against the
// generated byte width; out-of-range inputs would still hash, but to a value
// the contract's own reduction can never reproduce.
func Compute(bidAmount *big.Int, nonce *felt.Felt) (*felt.Felt, error) {
	if bidAmount == nil || bidAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: must be > 0", ErrInvalidBid)
	}
	if bidAmount.Cmp(maxBid) >= 0 {
		return nil, fmt.Errorf("%w: exceeds u128", ErrInvalidBid)
	}
	if nonce == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidNonce)
	}
	if utils.FeltToBigInt(nonce).Cmp(maxNonce) >= 0 {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrInvalidNonce, NonceByteLen)
	}
	return junocrypto.Poseidon(utils.BigIntToFelt(bidAmount), nonce), nil
}

// ParseBidAmount parses a user-supplied decimal bid amount and applies the
// same bounds Compute enforces.
func ParseBidAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBid)
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a decimal integer", ErrInvalidBid, s)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: must be > 0", ErrInvalidBid)
	}
	if amount.Cmp(maxBid) >= 0 {
		return nil, fmt.Errorf("%w: exceeds u128", ErrInvalidBid)
	}
	return amount, nil
}

// ParseNonce parses the decimal nonce string persisted by the bid vault.
func ParseNonce(s string) (*felt.Felt, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidNonce)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is not a decimal integer", ErrInvalidNonce, s)
	}
	if n.Cmp(maxNonce) >= 0 {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrInvalidNonce, NonceByteLen)
	}
	return utils.BigIntToFelt(n), nil
}
