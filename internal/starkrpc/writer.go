package starkrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
)

var (
	ErrSubmit   = errors.New("starkrpc: transaction submission failed")
	ErrReverted = errors.New("starkrpc: transaction reverted")
	ErrRejected = errors.New("starkrpc: transaction rejected")
)

// Contract external entrypoints.
const (
	fnCreateAuction = "create_auction"
	fnCommitBid     = "commit_bid"
	fnRevealBid     = "reveal_bid"
	fnSettle        = "settle"
)

// Invoker submits one invoke transaction and reports its hash. The wallet
// or account layer behind it owns signing, fees, and retry.
type Invoker interface {
	Invoke(ctx context.Context, call rpc.InvokeFunctionCall) (*felt.Felt, error)
}

// StatusReader polls transaction status for confirmation.
type StatusReader interface {
	GetTransactionStatus(ctx context.Context, transactionHash *felt.Felt) (*rpc.TxnStatusResp, error)
}

// Writer submits the auction contract's four state-changing entrypoints.
type Writer struct {
	invoker Invoker
	status  StatusReader
	address *felt.Felt
	poll    time.Duration
	log     *slog.Logger
}

func NewWriter(invoker Invoker, status StatusReader, contractAddress *felt.Felt, log *slog.Logger) (*Writer, error) {
	if invoker == nil {
		return nil, fmt.Errorf("%w: nil invoker", ErrInvalidConfig)
	}
	if status == nil {
		return nil, fmt.Errorf("%w: nil status reader", ErrInvalidConfig)
	}
	if contractAddress == nil || contractAddress.IsZero() {
		return nil, fmt.Errorf("%w: missing contract address", ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Writer{
		invoker: invoker,
		status:  status,
		address: contractAddress,
		poll:    2 * time.Second,
		log:     log,
	}, nil
}

func (w *Writer) invoke(ctx context.Context, fn string, calldata []*felt.Felt) (*felt.Felt, error) {
	hash, err := w.invoker.Invoke(ctx, rpc.InvokeFunctionCall{
		ContractAddress: w.address,
		FunctionName:    fn,
		CallData:        calldata,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSubmit, fn, err)
	}
	w.log.Info("transaction submitted", "entrypoint", fn, "tx", hash)
	return hash, nil
}

func (w *Writer) CreateAuction(ctx context.Context, commitEnd, revealEnd uint64) (*felt.Felt, error) {
	return w.invoke(ctx, fnCreateAuction, []*felt.Felt{
		new(felt.Felt).SetUint64(commitEnd),
		new(felt.Felt).SetUint64(revealEnd),
	})
}

func (w *Writer) CommitBid(ctx context.Context, commitment *felt.Felt) (*felt.Felt, error) {
	if commitment == nil || commitment.IsZero() {
		return nil, fmt.Errorf("%w: empty commitment", ErrInvalidConfig)
	}
	return w.invoke(ctx, fnCommitBid, []*felt.Felt{commitment})
}

func (w *Writer) RevealBid(ctx context.Context, bidAmount *big.Int, nonce *felt.Felt) (*felt.Felt, error) {
	if bidAmount == nil || bidAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: invalid bid amount", ErrInvalidConfig)
	}
	if nonce == nil {
		return nil, fmt.Errorf("%w: nil nonce", ErrInvalidConfig)
	}
	return w.invoke(ctx, fnRevealBid, []*felt.Felt{
		utils.BigIntToFelt(bidAmount),
		nonce,
	})
}

func (w *Writer) Settle(ctx context.Context) (*felt.Felt, error) {
	return w.invoke(ctx, fnSettle, nil)
}

// WaitConfirmed blocks until the transaction is accepted with a successful
// execution, the sequencer rejects or reverts it, or ctx ends. There is no
// client-side deadline beyond ctx: finality is owned by the chain.
func (w *Writer) WaitConfirmed(ctx context.Context, txHash *felt.Felt) error {
	if txHash == nil {
		return fmt.Errorf("%w: nil transaction hash", ErrInvalidConfig)
	}
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		st, err := w.status.GetTransactionStatus(ctx, txHash)
		if err != nil {
			// Status endpoints routinely lag a fresh submission; keep
			// polling until ctx gives up.
			w.log.Debug("transaction status unavailable", "tx", txHash, "err", err)
		} else {
			switch st.FinalityStatus {
			case rpc.TxnStatus_Rejected:
				return fmt.Errorf("%w: %s", ErrRejected, txHash)
			case rpc.TxnStatus_Accepted_On_L2, rpc.TxnStatus_Accepted_On_L1:
				if st.ExecutionStatus == rpc.TxnExecutionStatusREVERTED {
					return fmt.Errorf("%w: %s", ErrReverted, txHash)
				}
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("starkrpc: wait for %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}
