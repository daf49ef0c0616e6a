package starkrpc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
)

type fakeCaller struct {
	mu      sync.Mutex
	results map[string][]*felt.Felt
	fail    map[string]error
	calls   []string
}

func (f *fakeCaller) Call(_ context.Context, call rpc.FunctionCall, _ rpc.BlockID) ([]*felt.Felt, error) {
	name := selectorName(call.EntryPointSelector)
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if err, ok := f.fail[name]; ok {
		return nil, err
	}
	out, ok := f.results[name]
	if !ok {
		return nil, errors.New("unexpected entrypoint " + name)
	}
	return out, nil
}

var knownEntrypoints = []string{
	fnGetCommitEnd, fnGetRevealEnd, fnGetCreator,
	fnGetHighestBid, fnGetWinner, fnGetSettled, fnGetCommitment,
}

func selectorName(sel *felt.Felt) string {
	for _, name := range knownEntrypoints {
		if utils.GetSelectorFromNameFelt(name).Equal(sel) {
			return name
		}
	}
	return sel.String()
}

func u64(v uint64) *felt.Felt { return new(felt.Felt).SetUint64(v) }

func healthyCaller() *fakeCaller {
	return &fakeCaller{results: map[string][]*felt.Felt{
		fnGetCommitEnd:  {u64(1000)},
		fnGetRevealEnd:  {u64(1600)},
		fnGetCreator:    {u64(0x11)},
		fnGetHighestBid: {u64(250_000)},
		fnGetWinner:     {u64(0x22)},
		fnGetSettled:    {u64(1)},
	}}
}

func newTestBinding(t *testing.T, caller Caller) *Binding {
	t.Helper()
	b, err := NewBinding(caller, u64(0xc0ffee), slog.Default())
	if err != nil {
		t.Fatalf("NewBinding: %v", err)
	}
	return b
}

func TestFetchState_JoinsAllReads(t *testing.T) {
	t.Parallel()

	b := newTestBinding(t, healthyCaller())
	st, err := b.FetchState(context.Background())
	if err != nil {
		t.Fatalf("FetchState: %v", err)
	}
	if !st.CommitEndKnown || !st.RevealEndKnown {
		t.Fatalf("timestamps not marked known: %+v", st)
	}
	if st.CommitEnd != 1000 || st.RevealEnd != 1600 {
		t.Fatalf("timestamps: got %d/%d want 1000/1600", st.CommitEnd, st.RevealEnd)
	}
	if !st.Settled {
		t.Fatal("settled flag lost")
	}
	if got, want := st.HighestBid.Uint64(), uint64(250_000); got != want {
		t.Fatalf("highest bid: got %d want %d", got, want)
	}
	if !st.Winner.Equal(u64(0x22)) || !st.Creator.Equal(u64(0x11)) {
		t.Fatalf("addresses: %+v", st)
	}
}

func TestFetchState_PartialFailureLeavesFieldUnknown(t *testing.T) {
	t.Parallel()

	caller := healthyCaller()
	caller.fail = map[string]error{fnGetRevealEnd: errors.New("rpc down")}
	b := newTestBinding(t, caller)

	st, err := b.FetchState(context.Background())
	if err == nil {
		t.Fatal("want joined error for failed read")
	}
	if st.RevealEndKnown {
		t.Fatal("failed read must stay unknown")
	}
	if !st.CommitEndKnown || st.CommitEnd != 1000 {
		t.Fatalf("healthy reads must survive: %+v", st)
	}
}

func TestSettled_RejectsNonBoolean(t *testing.T) {
	t.Parallel()

	caller := healthyCaller()
	caller.results[fnGetSettled] = []*felt.Felt{u64(7)}
	b := newTestBinding(t, caller)

	if _, err := b.Settled(context.Background()); !errors.Is(err, ErrDecode) {
		t.Fatalf("got %v want %v", err, ErrDecode)
	}
}

func TestCommitEnd_RejectsOversizedValue(t *testing.T) {
	t.Parallel()

	wide, err := utils.HexToFelt("0x10000000000000000") // 2^64
	if err != nil {
		t.Fatalf("HexToFelt: %v", err)
	}
	caller := healthyCaller()
	caller.results[fnGetCommitEnd] = []*felt.Felt{wide}
	b := newTestBinding(t, caller)

	if _, err := b.CommitEnd(context.Background()); !errors.Is(err, ErrDecode) {
		t.Fatalf("got %v want %v", err, ErrDecode)
	}
}

func TestCommitment_PassesAccountCalldata(t *testing.T) {
	t.Parallel()

	caller := healthyCaller()
	caller.results[fnGetCommitment] = []*felt.Felt{u64(0xabc)}
	b := newTestBinding(t, caller)

	got, err := b.Commitment(context.Background(), u64(0x99))
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	if !got.Equal(u64(0xabc)) {
		t.Fatalf("got %s want 0xabc", got)
	}
	if _, err := b.Commitment(context.Background(), nil); err == nil {
		t.Fatal("nil account: want error")
	}
}

func TestBinding_EmptyResult(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{results: map[string][]*felt.Felt{fnGetCommitEnd: {}}}
	b := newTestBinding(t, caller)

	if _, err := b.CommitEnd(context.Background()); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("got %v want %v", err, ErrEmptyResult)
	}
}

func TestNewBinding_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewBinding(nil, u64(1), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil caller: got %v", err)
	}
	if _, err := NewBinding(&fakeCaller{}, new(felt.Felt), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("zero address: got %v", err)
	}
}
