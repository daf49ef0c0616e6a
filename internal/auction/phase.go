// Package auction holds the client-side model of the sealed-bid auction
// contract: the typed state read from chain and the pure phase derivation
// the rest of the client keys off.
package auction

import (
	"math/big"
	"time"

	"github.com/NethermindEth/juno/core/felt"
)

// Phase is the discrete auction phase derived from contract timestamps,
// the settled flag, and the local clock.
type Phase int

const (
	// PhaseLoading means at least one timestamp read has not resolved yet.
	PhaseLoading Phase = iota
	// PhaseNone means no auction has been created on the contract.
	PhaseNone
	// PhaseCommit is the sealed-bid commitment window.
	PhaseCommit
	// PhaseReveal is the reveal window.
	PhaseReveal
	// PhaseEnded means the reveal window closed but no settlement was observed.
	PhaseEnded
	// PhaseSettled means the contract reports the auction as settled.
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseNone:
		return "none"
	case PhaseCommit:
		return "commit"
	case PhaseReveal:
		return "reveal"
	case PhaseEnded:
		return "ended"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// State is the aggregate of the contract's view entrypoints. The Known flags
// record which timestamp reads have resolved at least once; phase resolution
// stays at loading until both have.
type State struct {
	CommitEnd uint64
	RevealEnd uint64

	Creator    *felt.Felt
	HighestBid *big.Int
	Winner     *felt.Felt
	Settled    bool

	CommitEndKnown bool
	RevealEndKnown bool
}

// ResolvePhase derives the phase for the given wall-clock time. It is pure:
// same state and clock, same answer. Evaluation order matters and first
// match wins.
func ResolvePhase(s State, now time.Time) Phase {
	if !s.CommitEndKnown || !s.RevealEndKnown {
		return PhaseLoading
	}
	// Either timestamp at zero means the contract has no auction; some
	// contract revisions zero only commit_end after settlement.
	if s.CommitEnd == 0 || s.RevealEnd == 0 {
		return PhaseNone
	}
	ts := now.Unix()
	if ts < 0 {
		ts = 0
	}
	t := uint64(ts)
	if t < s.CommitEnd {
		return PhaseCommit
	}
	if t < s.RevealEnd {
		return PhaseReveal
	}
	if s.Settled {
		return PhaseSettled
	}
	return PhaseEnded
}

// HasAuction reports whether an auction is currently occupying the contract.
// Settled is deliberately excluded so a finished auction permits creating a
// new one.
func HasAuction(p Phase) bool {
	switch p {
	case PhaseCommit, PhaseReveal, PhaseEnded:
		return true
	default:
		return false
	}
}
