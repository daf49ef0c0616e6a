package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/veilbid/veilbid-client/internal/archive"
	"github.com/veilbid/veilbid-client/internal/auction"
	"github.com/veilbid/veilbid-client/internal/config"
	"github.com/veilbid/veilbid-client/internal/events"
	eventspg "github.com/veilbid/veilbid-client/internal/events/postgres"
	"github.com/veilbid/veilbid-client/internal/notify"
	"github.com/veilbid/veilbid-client/internal/starkrpc"
	"github.com/veilbid/veilbid-client/internal/watch"
)

func main() {
	var (
		rpcURL       = flag.String("rpc-url", "", "Starknet JSON-RPC endpoint (or "+config.EnvRPCURL+")")
		contractAddr = flag.String("contract", "", "auction contract address (or "+config.EnvContractAddress+")")

		refetchEvery  = flag.Duration("refetch-interval", 10*time.Second, "contract state refetch interval")
		degradedAfter = flag.Int("degraded-after", 6, "consecutive refetch failures before reporting degraded")

		notifyDriver  = flag.String("notify-driver", notify.DriverStdio, "lifecycle notification driver: kafka|stdio")
		notifyBrokers = flag.String("notify-brokers", "", "comma-separated kafka brokers (required for kafka)")
		notifyTopic   = flag.String("notify-topic", notify.DefaultTopic, "lifecycle notification topic")

		indexEvents  = flag.Bool("index-events", false, "index contract events into the event store")
		storeDriver  = flag.String("store-driver", "postgres", "event store driver: postgres|memory")
		postgresDSN  = flag.String("postgres-dsn", "", "Postgres DSN (required when --store-driver=postgres)")
		startBlock   = flag.Uint64("start-block", 0, "block to start indexing from when the store has no cursor")
		syncInterval = flag.Duration("sync-interval", 30*time.Second, "event indexing interval")

		archiveDriver = flag.String("archive-driver", "", "settled-auction archive driver: s3|memory (empty disables archiving)")
		archiveBucket = flag.String("archive-bucket", "", "S3 bucket for settled-auction summaries")
		archivePrefix = flag.String("archive-prefix", "", "key prefix inside the archive bucket")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	url := config.Resolve(*rpcURL, config.EnvRPCURL)
	if url == "" {
		fmt.Fprintln(os.Stderr, "error: --rpc-url or "+config.EnvRPCURL+" is required")
		os.Exit(2)
	}
	contract, contractHex, err := config.Contract(*contractAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if *refetchEvery <= 0 || *syncInterval <= 0 || *degradedAfter <= 0 {
		fmt.Fprintln(os.Stderr, "error: --refetch-interval, --sync-interval, and --degraded-after must be > 0")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := rpc.NewProvider(url)
	if err != nil {
		log.Error("init rpc provider", "err", err)
		os.Exit(2)
	}
	binding, err := starkrpc.NewBinding(provider, contract, log)
	if err != nil {
		log.Error("init contract binding", "err", err)
		os.Exit(2)
	}

	producer, err := notify.NewProducer(notify.Config{
		Driver:  *notifyDriver,
		Topic:   *notifyTopic,
		Brokers: splitCommaList(*notifyBrokers),
	})
	if err != nil {
		log.Error("init notify producer", "err", err)
		os.Exit(2)
	}
	defer func() { _ = producer.Close() }()

	archiver, err := initArchive(ctx, *archiveDriver, *archiveBucket, *archivePrefix)
	if err != nil {
		log.Error("init archive", "err", err)
		os.Exit(2)
	}

	watcher, err := watch.New(watch.Config{
		RefetchInterval: *refetchEvery,
		DegradedAfter:   *degradedAfter,
	}, binding, log)
	if err != nil {
		log.Error("init watcher", "err", err)
		os.Exit(2)
	}

	if *indexEvents {
		store, cleanup, err := initEventStore(ctx, *storeDriver, *postgresDSN)
		if err != nil {
			log.Error("init event store", "err", err)
			os.Exit(2)
		}
		defer cleanup()

		indexer, err := events.NewIndexer(events.IndexerConfig{
			Contract:     contract,
			StartBlock:   *startBlock,
			PollInterval: *syncInterval,
		}, provider, store, log)
		if err != nil {
			log.Error("init event indexer", "err", err)
			os.Exit(2)
		}
		go func() {
			if err := indexer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("event indexer stopped", "err", err)
			}
		}()
	}

	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("watcher stopped", "err", err)
		}
	}()

	log.Info("auction watch started",
		"contract", contractHex,
		"refetchInterval", refetchEvery.String(),
		"notifyDriver", *notifyDriver,
		"indexEvents", *indexEvents,
		"archiveDriver", *archiveDriver,
	)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown", "reason", ctx.Err())
			return
		case ev, ok := <-watcher.Events():
			if !ok {
				return
			}
			handleEvent(ctx, ev, contractHex, producer, archiver, log)
		}
	}
}

func handleEvent(ctx context.Context, ev watch.Event, contractHex string, producer notify.Producer, archiver archive.Store, log *slog.Logger) {
	switch ev.Type {
	case watch.EventTransition:
		msg := notify.Message{
			Type:            "phase.transition",
			ContractAddress: contractHex,
			FromPhase:       ev.From.String(),
			ToPhase:         ev.To.String(),
			CommitEnd:       ev.State.CommitEnd,
			RevealEnd:       ev.State.RevealEnd,
			At:              ev.At,
		}
		if err := producer.Publish(ctx, msg); err != nil {
			log.Error("publish transition", "err", err)
		}
		if ev.To == auction.PhaseSettled {
			publishSettled(ctx, ev, contractHex, producer, archiver, log)
		}
	case watch.EventDegraded:
		if err := producer.Publish(ctx, notify.Message{
			Type:            "watch.degraded",
			ContractAddress: contractHex,
			At:              ev.At,
		}); err != nil {
			log.Error("publish degraded", "err", err)
		}
	case watch.EventRecovered:
		if err := producer.Publish(ctx, notify.Message{
			Type:            "watch.recovered",
			ContractAddress: contractHex,
			At:              ev.At,
		}); err != nil {
			log.Error("publish recovered", "err", err)
		}
	}
}

func publishSettled(ctx context.Context, ev watch.Event, contractHex string, producer notify.Producer, archiver archive.Store, log *slog.Logger) {
	msg := notify.Message{
		Type:            "auction.settled",
		ContractAddress: contractHex,
		CommitEnd:       ev.State.CommitEnd,
		RevealEnd:       ev.State.RevealEnd,
		At:              ev.At,
	}
	if ev.State.HighestBid != nil {
		msg.HighestBid = ev.State.HighestBid.String()
	}
	if ev.State.Winner != nil && !ev.State.Winner.IsZero() {
		msg.Winner = ev.State.Winner.String()
	}
	if err := producer.Publish(ctx, msg); err != nil {
		log.Error("publish settlement", "err", err)
	}

	if archiver == nil {
		return
	}
	summary := archive.Summary{
		ContractAddress: contractHex,
		Winner:          msg.Winner,
		WinningBid:      msg.HighestBid,
		CommitEnd:       ev.State.CommitEnd,
		RevealEnd:       ev.State.RevealEnd,
		SettledAt:       ev.At.UTC(),
	}
	if ev.State.Creator != nil && !ev.State.Creator.IsZero() {
		summary.Creator = ev.State.Creator.String()
	}
	if err := archiver.Archive(ctx, summary); err != nil {
		log.Error("archive settled auction", "err", err)
		return
	}
	log.Info("settled auction archived", "winner", summary.Winner, "winningBid", summary.WinningBid)
}

func initEventStore(ctx context.Context, driver, dsn string) (events.Store, func(), error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "memory":
		return events.NewMemoryStore(), func() {}, nil
	case "postgres":
		if strings.TrimSpace(dsn) == "" {
			return nil, nil, errors.New("--postgres-dsn is required when --store-driver=postgres")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("init pgx pool: %w", err)
		}
		store, err := eventspg.New(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported --store-driver %q", driver)
	}
}

func initArchive(ctx context.Context, driver, bucket, prefix string) (archive.Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "":
		return nil, nil
	case archive.DriverMemory:
		return archive.New(archive.Config{Driver: archive.DriverMemory})
	case archive.DriverS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return archive.New(archive.Config{
			Driver:   archive.DriverS3,
			Bucket:   bucket,
			Prefix:   prefix,
			S3Client: s3.NewFromConfig(awsCfg),
		})
	default:
		return nil, fmt.Errorf("unsupported --archive-driver %q", driver)
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
