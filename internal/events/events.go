// Package events turns the auction contract's emitted events into typed
// records and defines the store they are indexed into. The (tx hash, kind,
// subject) triple identifies a record; indexing the same block range twice
// must not produce duplicates.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
)

var (
	ErrDecode   = errors.New("events: malformed event")
	ErrMismatch = errors.New("events: conflicting record for same key")
)

type Kind string

const (
	KindAuctionCreated Kind = "auction_created"
	KindBidCommitted   Kind = "bid_committed"
	KindBidRevealed    Kind = "bid_revealed"
	KindAuctionSettled Kind = "auction_settled"
)

// Record is one decoded contract event. Subject is the account the event is
// about: the creator, the bidder, or the winner. Amount is a decimal string
// and empty where the event carries none.
type Record struct {
	Kind        Kind   `json:"kind"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Subject     string `json:"subject"`
	Amount      string `json:"amount,omitempty"`
	CommitEnd   uint64 `json:"commitEnd,omitempty"`
	RevealEnd   uint64 `json:"revealEnd,omitempty"`
}

// Store persists decoded records plus the indexer's block cursor.
type Store interface {
	// Insert stores the record; inserted is false when the key already
	// exists. An existing row with different payload fields is an error.
	Insert(ctx context.Context, rec Record) (inserted bool, err error)
	// List returns records ordered by block number ascending, then kind.
	List(ctx context.Context, limit int) ([]Record, error)
	// Cursor returns the next block to index from; ok is false before the
	// first SetCursor.
	Cursor(ctx context.Context) (block uint64, ok bool, err error)
	SetCursor(ctx context.Context, block uint64) error
}

// Cairo events put the event-name selector in Keys[0] and every field in Data.
var (
	selAuctionCreated = utils.GetSelectorFromNameFelt("AuctionCreated")
	selBidCommitted   = utils.GetSelectorFromNameFelt("BidCommitted")
	selBidRevealed    = utils.GetSelectorFromNameFelt("BidRevealed")
	selAuctionSettled = utils.GetSelectorFromNameFelt("AuctionSettled")
)

// Selectors returns the key filters for the four auction events, shaped for
// an RPC events query.
func Selectors() [][]*felt.Felt {
	return [][]*felt.Felt{{selAuctionCreated, selBidCommitted, selBidRevealed, selAuctionSettled}}
}

// Decode maps an emitted event to a Record. Events with an unrecognized
// selector report ok=false; recognized events with the wrong field count are
// an error.
func Decode(ev rpc.EmittedEvent) (Record, bool, error) {
	if len(ev.Keys) == 0 || ev.TransactionHash == nil {
		return Record{}, false, nil
	}

	rec := Record{
		TxHash:      ev.TransactionHash.String(),
		BlockNumber: ev.BlockNumber,
	}
	sel := ev.Keys[0]
	switch {
	case sel.Equal(selAuctionCreated):
		if len(ev.Data) != 3 {
			return Record{}, false, fmt.Errorf("%w: AuctionCreated wants 3 fields, got %d", ErrDecode, len(ev.Data))
		}
		rec.Kind = KindAuctionCreated
		rec.Subject = ev.Data[0].String()
		commitEnd, err := feltToUint64(ev.Data[1])
		if err != nil {
			return Record{}, false, fmt.Errorf("%w: AuctionCreated commit end: %v", ErrDecode, err)
		}
		revealEnd, err := feltToUint64(ev.Data[2])
		if err != nil {
			return Record{}, false, fmt.Errorf("%w: AuctionCreated reveal end: %v", ErrDecode, err)
		}
		rec.CommitEnd = commitEnd
		rec.RevealEnd = revealEnd

	case sel.Equal(selBidCommitted):
		if len(ev.Data) != 1 {
			return Record{}, false, fmt.Errorf("%w: BidCommitted wants 1 field, got %d", ErrDecode, len(ev.Data))
		}
		rec.Kind = KindBidCommitted
		rec.Subject = ev.Data[0].String()

	case sel.Equal(selBidRevealed):
		if len(ev.Data) != 2 {
			return Record{}, false, fmt.Errorf("%w: BidRevealed wants 2 fields, got %d", ErrDecode, len(ev.Data))
		}
		rec.Kind = KindBidRevealed
		rec.Subject = ev.Data[0].String()
		rec.Amount = utils.FeltToBigInt(ev.Data[1]).String()

	case sel.Equal(selAuctionSettled):
		if len(ev.Data) != 2 {
			return Record{}, false, fmt.Errorf("%w: AuctionSettled wants 2 fields, got %d", ErrDecode, len(ev.Data))
		}
		rec.Kind = KindAuctionSettled
		rec.Subject = ev.Data[0].String()
		rec.Amount = utils.FeltToBigInt(ev.Data[1]).String()

	default:
		return Record{}, false, nil
	}

	return rec, true, nil
}

func feltToUint64(f *felt.Felt) (uint64, error) {
	v := utils.FeltToBigInt(f)
	if !v.IsUint64() {
		return 0, fmt.Errorf("value %s exceeds u64", v)
	}
	return v.Uint64(), nil
}
