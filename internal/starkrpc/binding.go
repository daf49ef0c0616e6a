// Package starkrpc is the typed boundary to the auction contract: every raw
// felt coming off the wire is coerced into a Go type here and nowhere else.
package starkrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/veilbid/veilbid-client/internal/auction"
)

var (
	ErrInvalidConfig = errors.New("starkrpc: invalid config")
	ErrCall          = errors.New("starkrpc: contract call failed")
	ErrEmptyResult   = errors.New("starkrpc: empty call result")
	ErrDecode        = errors.New("starkrpc: malformed call result")
)

// Contract view entrypoints.
const (
	fnGetCommitEnd  = "get_commit_end"
	fnGetRevealEnd  = "get_reveal_end"
	fnGetCreator    = "get_creator"
	fnGetHighestBid = "get_highest_bid"
	fnGetWinner     = "get_winner"
	fnGetSettled    = "get_settled"
	fnGetCommitment = "get_commitment"
)

// Caller abstracts rpc.Provider.Call.
type Caller interface {
	Call(ctx context.Context, call rpc.FunctionCall, block rpc.BlockID) ([]*felt.Felt, error)
}

// Binding reads the auction contract's view surface.
type Binding struct {
	caller  Caller
	address *felt.Felt
	log     *slog.Logger
}

func NewBinding(caller Caller, contractAddress *felt.Felt, log *slog.Logger) (*Binding, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: nil caller", ErrInvalidConfig)
	}
	if contractAddress == nil || contractAddress.IsZero() {
		return nil, fmt.Errorf("%w: missing contract address", ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Binding{caller: caller, address: contractAddress, log: log}, nil
}

// Address returns the bound contract address.
func (b *Binding) Address() *felt.Felt { return b.address }

func (b *Binding) call(ctx context.Context, name string, calldata ...*felt.Felt) ([]*felt.Felt, error) {
	out, err := b.caller.Call(ctx, rpc.FunctionCall{
		ContractAddress:    b.address,
		EntryPointSelector: utils.GetSelectorFromNameFelt(name),
		Calldata:           calldata,
	}, rpc.WithBlockTag("latest"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCall, name, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyResult, name)
	}
	return out, nil
}

func (b *Binding) CommitEnd(ctx context.Context) (uint64, error) {
	out, err := b.call(ctx, fnGetCommitEnd)
	if err != nil {
		return 0, err
	}
	return feltToUint64(fnGetCommitEnd, out[0])
}

func (b *Binding) RevealEnd(ctx context.Context) (uint64, error) {
	out, err := b.call(ctx, fnGetRevealEnd)
	if err != nil {
		return 0, err
	}
	return feltToUint64(fnGetRevealEnd, out[0])
}

func (b *Binding) Creator(ctx context.Context) (*felt.Felt, error) {
	out, err := b.call(ctx, fnGetCreator)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (b *Binding) HighestBid(ctx context.Context) (*big.Int, error) {
	out, err := b.call(ctx, fnGetHighestBid)
	if err != nil {
		return nil, err
	}
	return utils.FeltToBigInt(out[0]), nil
}

func (b *Binding) Winner(ctx context.Context) (*felt.Felt, error) {
	out, err := b.call(ctx, fnGetWinner)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (b *Binding) Settled(ctx context.Context) (bool, error) {
	out, err := b.call(ctx, fnGetSettled)
	if err != nil {
		return false, err
	}
	v, err := feltToUint64(fnGetSettled, out[0])
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s returned %d, want 0 or 1", ErrDecode, fnGetSettled, v)
	}
}

// Commitment returns the stored commitment for an account; the zero felt
// means none is recorded.
func (b *Binding) Commitment(ctx context.Context, account *felt.Felt) (*felt.Felt, error) {
	if account == nil {
		return nil, fmt.Errorf("%w: nil account", ErrInvalidConfig)
	}
	out, err := b.call(ctx, fnGetCommitment, account)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// FetchState fans out the six independent state reads concurrently and
// joins them into one State. A failed read leaves its field unknown and is
// reported in the joined error; callers decide whether partial state is
// usable (phase resolution degrades to loading until both timestamps have
// resolved).
func (b *Binding) FetchState(ctx context.Context) (auction.State, error) {
	var (
		mu   sync.Mutex
		st   auction.State
		errs []error
		wg   sync.WaitGroup
	)

	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				b.log.Warn("state read failed", "entrypoint", name, "err", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	run(fnGetCommitEnd, func(ctx context.Context) error {
		v, err := b.CommitEnd(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		st.CommitEnd, st.CommitEndKnown = v, true
		mu.Unlock()
		return nil
	})
	run(fnGetRevealEnd, func(ctx context.Context) error {
		v, err := b.RevealEnd(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		st.RevealEnd, st.RevealEndKnown = v, true
		mu.Unlock()
		return nil
	})
	run(fnGetCreator, func(ctx context.Context) error {
		v, err := b.Creator(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		st.Creator = v
		mu.Unlock()
		return nil
	})
	run(fnGetHighestBid, func(ctx context.Context) error {
		v, err := b.HighestBid(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		st.HighestBid = v
		mu.Unlock()
		return nil
	})
	run(fnGetWinner, func(ctx context.Context) error {
		v, err := b.Winner(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		st.Winner = v
		mu.Unlock()
		return nil
	})
	run(fnGetSettled, func(ctx context.Context) error {
		v, err := b.Settled(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		st.Settled = v
		mu.Unlock()
		return nil
	})

	wg.Wait()
	return st, errors.Join(errs...)
}

func feltToUint64(name string, f *felt.Felt) (uint64, error) {
	v := utils.FeltToBigInt(f)
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s returned %s, want u64", ErrDecode, name, v)
	}
	return v.Uint64(), nil
}
