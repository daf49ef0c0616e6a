package orchestrate

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/veilbid/veilbid-client/internal/auction"
	"github.com/veilbid/veilbid-client/internal/bidstore"
	"github.com/veilbid/veilbid-client/internal/commitment"
	"github.com/veilbid/veilbid-client/internal/reconcile"
)

const (
	contractAddr = "0xc0ffee"
	commitEnd    = uint64(1_700_000_000)
	revealEnd    = commitEnd + 600
)

func u64(v uint64) *felt.Felt { return new(felt.Felt).SetUint64(v) }

type fakeReader struct {
	st      auction.State
	stErr   error
	onChain *felt.Felt
	commErr error
}

func (f *fakeReader) FetchState(context.Context) (auction.State, error) { return f.st, f.stErr }
func (f *fakeReader) Commitment(context.Context, *felt.Felt) (*felt.Felt, error) {
	return f.onChain, f.commErr
}

type fakeSubmitter struct {
	journal *[]string

	hash      *felt.Felt
	submitErr error
	waitErr   error

	createArgs  []uint64
	committed   *felt.Felt
	revealedBid *big.Int
	revealNonce *felt.Felt
	settled     bool
}

func (f *fakeSubmitter) submit(op string) (*felt.Felt, error) {
	*f.journal = append(*f.journal, op)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.hash, nil
}

func (f *fakeSubmitter) CreateAuction(_ context.Context, ce, re uint64) (*felt.Felt, error) {
	f.createArgs = []uint64{ce, re}
	return f.submit("submit.create")
}

func (f *fakeSubmitter) CommitBid(_ context.Context, com *felt.Felt) (*felt.Felt, error) {
	f.committed = com
	return f.submit("submit.commit")
}

func (f *fakeSubmitter) RevealBid(_ context.Context, amount *big.Int, nonce *felt.Felt) (*felt.Felt, error) {
	f.revealedBid, f.revealNonce = amount, nonce
	return f.submit("submit.reveal")
}

func (f *fakeSubmitter) Settle(context.Context) (*felt.Felt, error) {
	f.settled = true
	return f.submit("submit.settle")
}

func (f *fakeSubmitter) WaitConfirmed(context.Context, *felt.Felt) error {
	*f.journal = append(*f.journal, "submit.wait")
	return f.waitErr
}

type journalVault struct {
	bidstore.Store
	journal *[]string
	saveErr error
}

func (v *journalVault) Save(ctx context.Context, bid bidstore.PendingBid) error {
	*v.journal = append(*v.journal, "vault.save")
	if v.saveErr != nil {
		return v.saveErr
	}
	return v.Store.Save(ctx, bid)
}

func (v *journalVault) Clear(ctx context.Context) error {
	*v.journal = append(*v.journal, "vault.clear")
	return v.Store.Clear(ctx)
}

type harness struct {
	orch    *Orchestrator
	reader  *fakeReader
	submit  *fakeSubmitter
	vault   *journalVault
	journal *[]string
	now     time.Time
}

func newHarness(t *testing.T, st auction.State) *harness {
	t.Helper()
	journal := &[]string{}
	mem, err := bidstore.New(bidstore.Config{Driver: bidstore.DriverMemory})
	if err != nil {
		t.Fatalf("bidstore.New: %v", err)
	}
	h := &harness{
		reader:  &fakeReader{st: st, onChain: new(felt.Felt)},
		submit:  &fakeSubmitter{journal: journal, hash: u64(0xdead)},
		vault:   &journalVault{Store: mem, journal: journal},
		journal: journal,
		now:     time.Unix(int64(commitEnd)-60, 0),
	}
	h.orch, err = New(Config{
		ContractAddress: contractAddr,
		Account:         u64(0x99),
		Now:             func() time.Time { return h.now },
	}, h.reader, h.submit, h.vault, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func liveState() auction.State {
	return auction.State{
		CommitEnd:      commitEnd,
		RevealEnd:      revealEnd,
		CommitEndKnown: true,
		RevealEndKnown: true,
	}
}

func TestCommitBid_PersistsBeforeSubmitting(t *testing.T) {
	t.Parallel()

	h := newHarness(t, liveState())
	ctx := context.Background()

	tx, err := h.orch.CommitBid(ctx, "100000")
	if err != nil {
		t.Fatalf("CommitBid: %v", err)
	}
	if !tx.Equal(u64(0xdead)) {
		t.Fatalf("tx hash: got %s", tx)
	}

	if got, want := len(*h.journal), 2; got != want {
		t.Fatalf("journal %v: got %d entries want %d", *h.journal, got, want)
	}
	if (*h.journal)[0] != "vault.save" || (*h.journal)[1] != "submit.commit" {
		t.Fatalf("persistence must happen before submission, got %v", *h.journal)
	}

	// The stored triple must be self-consistent: recomputing the commitment
	// from the persisted amount and nonce yields what went on chain.
	rec, ok, err := h.vault.Load(ctx, contractAddr)
	if err != nil || !ok {
		t.Fatalf("vault.Load: ok=%v err=%v", ok, err)
	}
	amount, err := commitment.ParseBidAmount(rec.BidAmount)
	if err != nil {
		t.Fatalf("stored amount: %v", err)
	}
	nonce, err := commitment.ParseNonce(rec.Nonce)
	if err != nil {
		t.Fatalf("stored nonce: %v", err)
	}
	recomputed, err := commitment.Compute(amount, nonce)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !recomputed.Equal(h.submit.committed) {
		t.Fatalf("stored record inconsistent with submitted commitment")
	}
	if got, err := utils.HexToFelt(rec.Commitment); err != nil || !got.Equal(recomputed) {
		t.Fatalf("stored commitment mismatch: %v %v", got, err)
	}
}

func TestCommitBid_SubmitFailureKeepsVault(t *testing.T) {
	t.Parallel()

	h := newHarness(t, liveState())
	h.submit.submitErr = errors.New("network down")
	ctx := context.Background()

	if _, err := h.orch.CommitBid(ctx, "100000"); err == nil {
		t.Fatal("want submit error")
	}
	if _, ok, _ := h.vault.Load(ctx, contractAddr); !ok {
		t.Fatal("vault must keep the secret after a failed submission")
	}
}

func TestCommitBid_VaultFailureBlocksSubmission(t *testing.T) {
	t.Parallel()

	h := newHarness(t, liveState())
	h.vault.saveErr = bidstore.ErrStorageUnavailable

	if _, err := h.orch.CommitBid(context.Background(), "100000"); !errors.Is(err, ErrVault) {
		t.Fatalf("got %v want %v", err, ErrVault)
	}
	for _, op := range *h.journal {
		if op == "submit.commit" {
			t.Fatal("must not submit a commitment whose secret was not persisted")
		}
	}
}

func TestCommitBid_Gating(t *testing.T) {
	t.Parallel()

	t.Run("outside commit window", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, liveState())
		h.now = time.Unix(int64(commitEnd)+1, 0)
		if _, err := h.orch.CommitBid(context.Background(), "100000"); !errors.Is(err, ErrWrongPhase) {
			t.Fatalf("got %v want %v", err, ErrWrongPhase)
		}
	})

	t.Run("already committed", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, liveState())
		h.reader.onChain = u64(0xabc)
		if _, err := h.orch.CommitBid(context.Background(), "100000"); !errors.Is(err, ErrAlreadyCommitted) {
			t.Fatalf("got %v want %v", err, ErrAlreadyCommitted)
		}
	})

	t.Run("invalid amount", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, liveState())
		if _, err := h.orch.CommitBid(context.Background(), "0"); !errors.Is(err, commitment.ErrInvalidBid) {
			t.Fatalf("got %v want %v", err, commitment.ErrInvalidBid)
		}
		if len(*h.journal) != 0 {
			t.Fatalf("invalid amount must be rejected before any effect, got %v", *h.journal)
		}
	})

	t.Run("state unavailable", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, auction.State{})
		h.reader.stErr = errors.New("rpc down")
		if _, err := h.orch.CommitBid(context.Background(), "100000"); !errors.Is(err, ErrStateUnavailable) {
			t.Fatalf("got %v want %v", err, ErrStateUnavailable)
		}
	})
}

func revealHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, liveState())
	h.now = time.Unix(int64(commitEnd)+10, 0)

	// Seed the vault with a committed bid whose commitment is on chain.
	amount := big.NewInt(100000)
	nonce := u64(123456789)
	com, err := commitment.Compute(amount, nonce)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	err = h.vault.Store.Save(context.Background(), bidstore.PendingBid{
		BidAmount:       "100000",
		Nonce:           "123456789",
		Commitment:      com.String(),
		ContractAddress: contractAddr,
	})
	if err != nil {
		t.Fatalf("seed vault: %v", err)
	}
	h.reader.onChain = com
	return h
}

func TestRevealBid_ClearsVaultOnlyAfterConfirmation(t *testing.T) {
	t.Parallel()

	h := revealHarness(t)
	ctx := context.Background()

	tx, err := h.orch.RevealBid(ctx)
	if err != nil {
		t.Fatalf("RevealBid: %v", err)
	}
	if !tx.Equal(u64(0xdead)) {
		t.Fatalf("tx: got %s", tx)
	}
	if got, want := h.submit.revealedBid.String(), "100000"; got != want {
		t.Fatalf("revealed amount: got %s want %s", got, want)
	}
	if !h.submit.revealNonce.Equal(u64(123456789)) {
		t.Fatalf("revealed nonce: got %s", h.submit.revealNonce)
	}

	want := []string{"submit.reveal", "submit.wait", "vault.clear"}
	if len(*h.journal) != len(want) {
		t.Fatalf("journal: got %v want %v", *h.journal, want)
	}
	for i := range want {
		if (*h.journal)[i] != want[i] {
			t.Fatalf("journal: got %v want %v", *h.journal, want)
		}
	}
	if _, ok, _ := h.vault.Load(ctx, contractAddr); ok {
		t.Fatal("vault must be empty after a confirmed reveal")
	}
}

func TestRevealBid_UnconfirmedKeepsVault(t *testing.T) {
	t.Parallel()

	h := revealHarness(t)
	h.submit.waitErr = errors.New("reverted")
	ctx := context.Background()

	if _, err := h.orch.RevealBid(ctx); err == nil {
		t.Fatal("want confirmation error")
	}
	if _, ok, _ := h.vault.Load(ctx, contractAddr); !ok {
		t.Fatal("vault must survive an unconfirmed reveal")
	}
}

func TestRevealBid_BlockedWhenLocalDataLost(t *testing.T) {
	t.Parallel()

	h := newHarness(t, liveState())
	h.now = time.Unix(int64(commitEnd)+10, 0)
	h.reader.onChain = u64(0xabc) // committed on chain, vault empty

	_, err := h.orch.RevealBid(context.Background())
	var blocked *RevealBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("got %v want RevealBlockedError", err)
	}
	if blocked.Reason != reconcile.ReasonLocalDataLost {
		t.Fatalf("reason: got %s want %s", blocked.Reason, reconcile.ReasonLocalDataLost)
	}
}

func TestRevealBid_BlockedOutsideWindow(t *testing.T) {
	t.Parallel()

	h := revealHarness(t)
	h.now = time.Unix(int64(revealEnd), 0)
	if _, err := h.orch.RevealBid(context.Background()); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("got %v want %v", err, ErrWrongPhase)
	}
}

func TestCreateAuction_ComputesWindowFromNow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, auction.State{CommitEndKnown: true, RevealEndKnown: true})
	h.now = time.Unix(5000, 0)

	if _, err := h.orch.CreateAuction(context.Background(), 5*time.Minute, 10*time.Minute); err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if got, want := h.submit.createArgs[0], uint64(5000+300); got != want {
		t.Fatalf("commit end: got %d want %d", got, want)
	}
	if got, want := h.submit.createArgs[1], uint64(5000+300+600); got != want {
		t.Fatalf("reveal end: got %d want %d", got, want)
	}
}

func TestCreateAuction_Gating(t *testing.T) {
	t.Parallel()

	t.Run("active auction", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, liveState())
		if _, err := h.orch.CreateAuction(context.Background(), time.Minute, time.Minute); !errors.Is(err, ErrWrongPhase) {
			t.Fatalf("got %v want %v", err, ErrWrongPhase)
		}
	})

	t.Run("settled auction is recreatable", func(t *testing.T) {
		t.Parallel()
		st := liveState()
		st.Settled = true
		h := newHarness(t, st)
		h.now = time.Unix(int64(revealEnd)+10, 0)
		if _, err := h.orch.CreateAuction(context.Background(), time.Minute, time.Minute); err != nil {
			t.Fatalf("CreateAuction over settled: %v", err)
		}
	})

	t.Run("non-positive durations", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, auction.State{CommitEndKnown: true, RevealEndKnown: true})
		if _, err := h.orch.CreateAuction(context.Background(), 0, time.Minute); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("got %v want %v", err, ErrInvalidDuration)
		}
		if _, err := h.orch.CreateAuction(context.Background(), time.Minute, -time.Second); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("got %v want %v", err, ErrInvalidDuration)
		}
	})
}

func TestSettle_Gating(t *testing.T) {
	t.Parallel()

	h := newHarness(t, liveState())
	h.now = time.Unix(int64(revealEnd)+1, 0)
	if _, err := h.orch.Settle(context.Background()); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !h.submit.settled {
		t.Fatal("settle not submitted")
	}

	h2 := newHarness(t, liveState())
	if _, err := h2.orch.Settle(context.Background()); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("settle during commit: got %v want %v", err, ErrWrongPhase)
	}

	st := liveState()
	st.Settled = true
	h3 := newHarness(t, st)
	h3.now = time.Unix(int64(revealEnd)+1, 0)
	if _, err := h3.orch.Settle(context.Background()); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("settle when settled: got %v want %v", err, ErrWrongPhase)
	}
}

func TestStatus_DegradesToLoadingOnReadFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, auction.State{})
	h.reader.stErr = errors.New("rpc down")

	status := h.orch.Status(context.Background())
	if status.Phase != auction.PhaseLoading {
		t.Fatalf("phase: got %s want %s", status.Phase, auction.PhaseLoading)
	}
	if status.CanReveal {
		t.Fatal("cannot reveal with unknown state")
	}
}

func TestStatus_ReportsRevealReadiness(t *testing.T) {
	t.Parallel()

	h := revealHarness(t)
	status := h.orch.Status(context.Background())
	if !status.HasBid || !status.CanReveal || status.Reason != reconcile.ReasonReady {
		t.Fatalf("status: %+v", status)
	}
}
