package starkrpc

import (
	"context"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
)

// feeMultiplier pads the estimated max fee so a busy sequencer does not
// starve the transaction.
const feeMultiplier = 1.5

// AccountSender is the slice of starknet.go's account API the client needs.
type AccountSender interface {
	BuildAndSendInvokeTxn(ctx context.Context, functionCalls []rpc.InvokeFunctionCall, multiplier float64) (*rpc.AddInvokeTransactionResponse, error)
}

// AccountInvoker adapts a starknet.go account to the Invoker interface.
type AccountInvoker struct {
	sender AccountSender
}

func NewAccountInvoker(sender AccountSender) (*AccountInvoker, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: nil account", ErrInvalidConfig)
	}
	return &AccountInvoker{sender: sender}, nil
}

func (a *AccountInvoker) Invoke(ctx context.Context, call rpc.InvokeFunctionCall) (*felt.Felt, error) {
	resp, err := a.sender.BuildAndSendInvokeTxn(ctx, []rpc.InvokeFunctionCall{call}, feeMultiplier)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.TransactionHash == nil {
		return nil, fmt.Errorf("%w: missing transaction hash in response", ErrSubmit)
	}
	return resp.TransactionHash, nil
}
