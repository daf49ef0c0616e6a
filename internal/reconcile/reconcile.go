// Package reconcile decides whether the locally stored pending bid can be
// revealed against the commitment the contract holds for the account. It
// runs before the reveal action is offered so the client never submits a
// reveal the contract is guaranteed to reject.
package reconcile

import (
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/veilbid/veilbid-client/internal/bidstore"
)

// Reason explains a reveal-eligibility decision.
type Reason int

const (
	// ReasonReady: local record and on-chain commitment line up.
	ReasonReady Reason = iota
	// ReasonNeverCommitted: no on-chain commitment for this account (or the
	// commit transaction never landed).
	ReasonNeverCommitted
	// ReasonLocalDataLost: the account committed on chain but the local
	// secret is gone (other browser/host, or storage cleared). The plaintext
	// bid and nonce exist nowhere the client can reach; this is not
	// retryable.
	ReasonLocalDataLost
	// ReasonCommitmentMismatch: a local record exists but hashes to a
	// different commitment than the contract stores; revealing it would
	// burn a fee on a doomed transaction.
	ReasonCommitmentMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonReady:
		return "ready"
	case ReasonNeverCommitted:
		return "never committed"
	case ReasonLocalDataLost:
		return "committed elsewhere, local data lost"
	case ReasonCommitmentMismatch:
		return "local record does not match on-chain commitment"
	default:
		return "unknown"
	}
}

type Decision struct {
	CanReveal bool
	Reason    Reason
}

// Reconcile compares the pending bid (nil when the vault is empty or stale)
// with the on-chain commitment for the account. A zero or nil onChain felt
// is taken to mean "no commitment recorded"; that zero is never a valid hash
// output is a contract-side guarantee this client inherits.
func Reconcile(pending *bidstore.PendingBid, onChain *felt.Felt, currentContractAddress string) Decision {
	committed := onChain != nil && !onChain.IsZero()

	if pending == nil || !sameAddress(pending.ContractAddress, currentContractAddress) {
		if committed {
			return Decision{Reason: ReasonLocalDataLost}
		}
		return Decision{Reason: ReasonNeverCommitted}
	}
	if !committed {
		// The vault has a record but the chain does not: the commit
		// transaction was submitted and never landed, or is still pending.
		return Decision{Reason: ReasonNeverCommitted}
	}
	if !matchesCommitment(pending.Commitment, onChain) {
		return Decision{Reason: ReasonCommitmentMismatch}
	}
	return Decision{CanReveal: true, Reason: ReasonReady}
}

func matchesCommitment(local string, onChain *felt.Felt) bool {
	f, err := utils.HexToFelt(strings.TrimSpace(local))
	if err != nil {
		return false
	}
	return f.Equal(onChain)
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
