// Package orchestrate composes the commitment codec, the bid vault, the
// reconciler, and the contract binding into the four state-changing auction
// actions, each gated by the phase the contract is actually in. The contract
// remains the enforcer; gating here exists to avoid submitting transactions
// that are guaranteed to revert.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/veilbid/veilbid-client/internal/auction"
	"github.com/veilbid/veilbid-client/internal/bidstore"
	"github.com/veilbid/veilbid-client/internal/commitment"
	"github.com/veilbid/veilbid-client/internal/reconcile"
)

var (
	ErrInvalidConfig    = errors.New("orchestrate: invalid config")
	ErrStateUnavailable = errors.New("orchestrate: auction state unavailable")
	ErrWrongPhase       = errors.New("orchestrate: action not allowed in current phase")
	ErrInvalidDuration  = errors.New("orchestrate: phase durations must be > 0")
	ErrAlreadyCommitted = errors.New("orchestrate: account already committed a bid")
	ErrVault            = errors.New("orchestrate: pending-bid vault failed")
)

// RevealBlockedError reports why the reconciler refused a reveal.
type RevealBlockedError struct {
	Reason reconcile.Reason
}

func (e *RevealBlockedError) Error() string {
	return fmt.Sprintf("orchestrate: reveal blocked: %s", e.Reason)
}

// StateReader is the contract's view surface.
type StateReader interface {
	FetchState(ctx context.Context) (auction.State, error)
	Commitment(ctx context.Context, account *felt.Felt) (*felt.Felt, error)
}

// Submitter is the contract's write surface plus confirmation.
type Submitter interface {
	CreateAuction(ctx context.Context, commitEnd, revealEnd uint64) (*felt.Felt, error)
	CommitBid(ctx context.Context, commitment *felt.Felt) (*felt.Felt, error)
	RevealBid(ctx context.Context, bidAmount *big.Int, nonce *felt.Felt) (*felt.Felt, error)
	Settle(ctx context.Context) (*felt.Felt, error)
	WaitConfirmed(ctx context.Context, txHash *felt.Felt) error
}

type Config struct {
	// ContractAddress is the normalized hex address scoping the vault.
	ContractAddress string
	// Account is the caller's account address, used for commitment lookups.
	Account *felt.Felt
	// Now defaults to time.Now.
	Now func() time.Time
}

type Orchestrator struct {
	cfg    Config
	reader StateReader
	submit Submitter
	vault  bidstore.Store
	log    *slog.Logger
}

func New(cfg Config, reader StateReader, submit Submitter, vault bidstore.Store, log *slog.Logger) (*Orchestrator, error) {
	if strings.TrimSpace(cfg.ContractAddress) == "" {
		return nil, fmt.Errorf("%w: missing contract address", ErrInvalidConfig)
	}
	if cfg.Account == nil || cfg.Account.IsZero() {
		return nil, fmt.Errorf("%w: missing account address", ErrInvalidConfig)
	}
	if reader == nil || submit == nil || vault == nil {
		return nil, fmt.Errorf("%w: reader, submitter, and vault are required", ErrInvalidConfig)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{cfg: cfg, reader: reader, submit: submit, vault: vault, log: log}, nil
}

func (o *Orchestrator) phase(ctx context.Context) (auction.State, auction.Phase, error) {
	st, err := o.reader.FetchState(ctx)
	ph := auction.ResolvePhase(st, o.cfg.Now())
	if ph == auction.PhaseLoading {
		if err != nil {
			return st, ph, fmt.Errorf("%w: %v", ErrStateUnavailable, err)
		}
		return st, ph, ErrStateUnavailable
	}
	// Partial read failures that still resolved both timestamps are only
	// logged; the phase is trustworthy.
	if err != nil {
		o.log.Warn("partial state fetch", "err", err)
	}
	return st, ph, nil
}

// CreateAuction starts a new auction with commitEnd = now + commitDuration
// and revealEnd = commitEnd + revealDuration.
func (o *Orchestrator) CreateAuction(ctx context.Context, commitDuration, revealDuration time.Duration) (*felt.Felt, error) {
	if commitDuration <= 0 || revealDuration <= 0 {
		return nil, ErrInvalidDuration
	}
	st, ph, err := o.phase(ctx)
	if err != nil {
		return nil, err
	}
	if auction.HasAuction(ph) {
		return nil, fmt.Errorf("%w: auction already active (%s)", ErrWrongPhase, ph)
	}
	if ph == auction.PhaseSettled && st.CommitEnd != 0 {
		// Some contract revisions keep timestamps after settle() and reject
		// recreation until upgraded; the contract stays authoritative.
		o.log.Warn("creating over a settled auction; deployed contract revision may reject this",
			"commit_end", st.CommitEnd, "reveal_end", st.RevealEnd)
	}

	now := uint64(o.cfg.Now().Unix())
	commitEnd := now + uint64(commitDuration/time.Second)
	revealEnd := commitEnd + uint64(revealDuration/time.Second)
	return o.submit.CreateAuction(ctx, commitEnd, revealEnd)
}

// CommitBid seals the bid and submits the commitment. The secret record is
// persisted before the transaction goes out: a crash between submission and
// confirmation must never cost the user the ability to reveal.
func (o *Orchestrator) CommitBid(ctx context.Context, bidAmount string) (*felt.Felt, error) {
	amount, err := commitment.ParseBidAmount(bidAmount)
	if err != nil {
		return nil, err
	}
	_, ph, err := o.phase(ctx)
	if err != nil {
		return nil, err
	}
	if ph != auction.PhaseCommit {
		return nil, fmt.Errorf("%w: commit window is closed (%s)", ErrWrongPhase, ph)
	}

	onChain, err := o.reader.Commitment(ctx, o.cfg.Account)
	if err != nil {
		return nil, err
	}
	if onChain != nil && !onChain.IsZero() {
		return nil, ErrAlreadyCommitted
	}

	nonce, err := commitment.GenerateNonce()
	if err != nil {
		return nil, err
	}
	com, err := commitment.Compute(amount, nonce)
	if err != nil {
		return nil, err
	}

	bid := bidstore.PendingBid{
		BidAmount:       amount.String(),
		Nonce:           utils.FeltToBigInt(nonce).String(),
		Commitment:      com.String(),
		ContractAddress: o.cfg.ContractAddress,
	}
	if err := o.vault.Save(ctx, bid); err != nil {
		// Without the persisted secret a landed commit could never be
		// revealed; refuse to submit.
		return nil, fmt.Errorf("%w: %v", ErrVault, err)
	}

	tx, err := o.submit.CommitBid(ctx, com)
	if err != nil {
		// Keep the vault: if the transaction actually landed despite the
		// error, the reveal is still possible.
		return nil, err
	}
	return tx, nil
}

// RevealBid submits the stored plaintext bid and nonce, and clears the vault
// only once the transaction is confirmed successful.
func (o *Orchestrator) RevealBid(ctx context.Context) (*felt.Felt, error) {
	_, ph, err := o.phase(ctx)
	if err != nil {
		return nil, err
	}
	if ph != auction.PhaseReveal {
		return nil, fmt.Errorf("%w: reveal window is closed (%s)", ErrWrongPhase, ph)
	}

	pending, ok, err := o.vault.Load(ctx, o.cfg.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVault, err)
	}
	onChain, err := o.reader.Commitment(ctx, o.cfg.Account)
	if err != nil {
		return nil, err
	}

	var rec *bidstore.PendingBid
	if ok {
		rec = &pending
	}
	decision := reconcile.Reconcile(rec, onChain, o.cfg.ContractAddress)
	if !decision.CanReveal {
		return nil, &RevealBlockedError{Reason: decision.Reason}
	}

	amount, err := commitment.ParseBidAmount(pending.BidAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: stored amount: %v", ErrVault, err)
	}
	nonce, err := commitment.ParseNonce(pending.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: stored nonce: %v", ErrVault, err)
	}

	tx, err := o.submit.RevealBid(ctx, amount, nonce)
	if err != nil {
		return nil, err
	}
	if err := o.submit.WaitConfirmed(ctx, tx); err != nil {
		// Unconfirmed or reverted: keep the secret so the user can retry.
		return tx, err
	}
	if err := o.vault.Clear(ctx); err != nil {
		// The reveal succeeded; a leftover record is only hygiene.
		o.log.Warn("clear vault after reveal", "err", err)
	}
	return tx, nil
}

// Settle finalizes an ended auction. Any account may settle.
func (o *Orchestrator) Settle(ctx context.Context) (*felt.Felt, error) {
	_, ph, err := o.phase(ctx)
	if err != nil {
		return nil, err
	}
	if ph != auction.PhaseEnded {
		return nil, fmt.Errorf("%w: auction is not awaiting settlement (%s)", ErrWrongPhase, ph)
	}
	return o.submit.Settle(ctx)
}

// Status is a read-only report combining chain state, phase, and the local
// reveal decision.
type Status struct {
	State     auction.State
	Phase     auction.Phase
	HasBid    bool
	CanReveal bool
	Reason    reconcile.Reason
}

// Status never fails outright: read errors degrade to a loading phase so
// callers can render something stable.
func (o *Orchestrator) Status(ctx context.Context) Status {
	st, err := o.reader.FetchState(ctx)
	if err != nil {
		o.log.Warn("state fetch", "err", err)
	}
	ph := auction.ResolvePhase(st, o.cfg.Now())

	pending, ok, err := o.vault.Load(ctx, o.cfg.ContractAddress)
	if err != nil {
		o.log.Warn("vault load", "err", err)
	}
	var rec *bidstore.PendingBid
	if ok {
		rec = &pending
	}

	var onChain *felt.Felt
	if o.cfg.Account != nil {
		onChain, err = o.reader.Commitment(ctx, o.cfg.Account)
		if err != nil {
			o.log.Warn("commitment read", "err", err)
		}
	}
	decision := reconcile.Reconcile(rec, onChain, o.cfg.ContractAddress)
	return Status{
		State:     st,
		Phase:     ph,
		HasBid:    ok,
		CanReveal: decision.CanReveal,
		Reason:    decision.Reason,
	}
}
