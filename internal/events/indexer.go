package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
)

var ErrInvalidIndexerConfig = errors.New("events: invalid indexer config")

// EventSource is the slice of the RPC provider the indexer needs.
type EventSource interface {
	Events(ctx context.Context, input rpc.EventsInput) (*rpc.EventChunk, error)
}

type IndexerConfig struct {
	// Contract filters events to the auction contract.
	Contract *felt.Felt
	// StartBlock is where indexing begins when the store has no cursor yet.
	StartBlock uint64
	// PageSize is the events-per-page request size. Defaults to 128.
	PageSize int
	// PollInterval is the Run loop cadence. Defaults to 30s.
	PollInterval time.Duration
}

// Indexer pulls the contract's event pages from the cursor forward and
// inserts them. Pages overlap across runs at the cursor block, so inserts
// rely on the store's insert-once key.
type Indexer struct {
	cfg    IndexerConfig
	source EventSource
	store  Store
	log    *slog.Logger
}

func NewIndexer(cfg IndexerConfig, source EventSource, store Store, log *slog.Logger) (*Indexer, error) {
	if cfg.Contract == nil || cfg.Contract.IsZero() {
		return nil, fmt.Errorf("%w: missing contract address", ErrInvalidIndexerConfig)
	}
	if source == nil || store == nil {
		return nil, fmt.Errorf("%w: source and store are required", ErrInvalidIndexerConfig)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 128
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{cfg: cfg, source: source, store: store, log: log}, nil
}

// Sync runs one indexing pass: every page from the cursor block through the
// latest block. It returns the number of newly inserted records.
func (ix *Indexer) Sync(ctx context.Context) (int, error) {
	from, ok, err := ix.store.Cursor(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		from = ix.cfg.StartBlock
	}

	var (
		inserted  int
		lastBlock = from
		token     string
	)
	for {
		input := rpc.EventsInput{
			EventFilter: rpc.EventFilter{
				FromBlock: rpc.WithBlockNumber(from),
				ToBlock:   rpc.WithBlockTag("latest"),
				Address:   ix.cfg.Contract,
				Keys:      Selectors(),
			},
			ResultPageRequest: rpc.ResultPageRequest{
				ContinuationToken: token,
				ChunkSize:         ix.cfg.PageSize,
			},
		}
		chunk, err := ix.source.Events(ctx, input)
		if err != nil {
			return inserted, fmt.Errorf("events: fetch page: %w", err)
		}

		for _, ev := range chunk.Events {
			rec, ok, err := Decode(ev)
			if err != nil {
				// A malformed event is a contract/ABI drift signal, not a
				// reason to stall the whole index.
				ix.log.Warn("skipping undecodable event", "tx", ev.TransactionHash, "err", err)
				continue
			}
			if !ok {
				continue
			}
			fresh, err := ix.store.Insert(ctx, rec)
			if err != nil {
				return inserted, fmt.Errorf("events: insert %s/%s: %w", rec.Kind, rec.TxHash, err)
			}
			if fresh {
				inserted++
				ix.log.Info("indexed event", "kind", rec.Kind, "subject", rec.Subject, "block", rec.BlockNumber)
			}
			if rec.BlockNumber > lastBlock {
				lastBlock = rec.BlockNumber
			}
		}

		if chunk.ContinuationToken == "" {
			break
		}
		token = chunk.ContinuationToken
	}

	// Re-scan the last block next pass; insert-once absorbs the overlap.
	if err := ix.store.SetCursor(ctx, lastBlock); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// Run syncs on the poll interval until ctx ends. Sync errors are logged and
// retried on the next interval.
func (ix *Indexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(ix.cfg.PollInterval)
	defer ticker.Stop()

	if _, err := ix.Sync(ctx); err != nil {
		ix.log.Warn("event sync failed", "err", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := ix.Sync(ctx); err != nil {
				ix.log.Warn("event sync failed", "err", err)
			}
		}
	}
}
