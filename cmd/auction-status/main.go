package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/veilbid/veilbid-client/internal/auction"
	"github.com/veilbid/veilbid-client/internal/bidstore"
	"github.com/veilbid/veilbid-client/internal/config"
	"github.com/veilbid/veilbid-client/internal/reconcile"
	"github.com/veilbid/veilbid-client/internal/secrets"
	"github.com/veilbid/veilbid-client/internal/starkrpc"
)

type statusReport struct {
	Phase      string `json:"phase"`
	CommitEnd  uint64 `json:"commitEnd"`
	RevealEnd  uint64 `json:"revealEnd"`
	HighestBid string `json:"highestBid,omitempty"`
	Winner     string `json:"winner,omitempty"`
	Settled    bool   `json:"settled"`
	HasBid     bool   `json:"hasPendingBid"`
	CanReveal  bool   `json:"canReveal"`
	Reason     string `json:"revealBlockedReason,omitempty"`
	Degraded   bool   `json:"degraded,omitempty"`
}

func main() {
	var (
		rpcURL       = flag.String("rpc-url", "", "Starknet JSON-RPC endpoint (or "+config.EnvRPCURL+")")
		contractAddr = flag.String("contract", "", "auction contract address (or "+config.EnvContractAddress+")")
		accountAddr  = flag.String("account", "", "account address for commitment lookup (or "+config.EnvAccountAddress+")")
		vaultDriver  = flag.String("vault-driver", bidstore.DriverFile, "pending-bid vault driver: file|memory")
		vaultPath    = flag.String("vault", "", "pending-bid vault path (default ~/.veilbid/pending_bid.json)")
		vaultPassRef = flag.String("vault-pass-ref", "", "secret reference for the vault passphrase, e.g. env:VEILBID_VAULT_PASSPHRASE or aws:secret-id")
		asJSON       = flag.Bool("json", false, "emit the report as JSON")
		timeout      = flag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	url := config.Resolve(*rpcURL, config.EnvRPCURL)
	if url == "" {
		fmt.Fprintln(os.Stderr, "error: --rpc-url or "+config.EnvRPCURL+" is required")
		os.Exit(2)
	}

	contract, contractHex, err := config.Contract(*contractAddr)
	if err != nil {
		if errors.Is(err, config.ErrNotConfigured) {
			// Degrade instead of failing: there is simply no auction to show.
			fmt.Println("auction: not configured (set --contract or " + config.EnvContractAddress + ")")
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	provider, err := rpc.NewProvider(url)
	if err != nil {
		log.Error("init rpc provider", "err", err)
		os.Exit(1)
	}
	binding, err := starkrpc.NewBinding(provider, contract, log)
	if err != nil {
		log.Error("init contract binding", "err", err)
		os.Exit(1)
	}

	var report statusReport
	st, err := binding.FetchState(ctx)
	if err != nil {
		log.Warn("partial or failed state fetch", "err", err)
		report.Degraded = true
	}
	phase := auction.ResolvePhase(st, time.Now())
	report.Phase = phase.String()
	report.CommitEnd = st.CommitEnd
	report.RevealEnd = st.RevealEnd
	report.Settled = st.Settled
	if st.HighestBid != nil && st.HighestBid.Sign() > 0 {
		report.HighestBid = st.HighestBid.String()
	}
	if st.Settled && st.Winner != nil && !st.Winner.IsZero() {
		report.Winner = st.Winner.String()
	}

	passphrase, err := resolveSecret(ctx, *vaultPassRef)
	if err != nil {
		log.Error("resolve vault passphrase", "err", err)
		os.Exit(1)
	}
	vault, err := bidstore.New(bidstore.Config{
		Driver:     *vaultDriver,
		Path:       vaultOrDefault(*vaultPath),
		Passphrase: passphrase,
	})
	if err != nil {
		log.Error("init bid vault", "err", err)
		os.Exit(1)
	}

	pending, hasBid, err := vault.Load(ctx, contractHex)
	if err != nil {
		log.Warn("vault load", "err", err)
	}
	report.HasBid = hasBid

	var rec *bidstore.PendingBid
	if hasBid {
		rec = &pending
	}
	if acct := config.Resolve(*accountAddr, config.EnvAccountAddress); acct != "" {
		account, err := config.ParseFelt(acct)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: parse --account: %v\n", err)
			os.Exit(2)
		}
		onChain, err := binding.Commitment(ctx, account)
		if err != nil {
			log.Warn("commitment read", "err", err)
		}
		decision := reconcile.Reconcile(rec, onChain, contractHex)
		report.CanReveal = decision.CanReveal
		if !decision.CanReveal {
			report.Reason = decision.Reason.String()
		}
	}

	if *asJSON {
		if err := json.NewEncoder(os.Stdout).Encode(report); err != nil {
			log.Error("encode report", "err", err)
			os.Exit(1)
		}
		return
	}
	printReport(report)
}

func printReport(r statusReport) {
	fmt.Printf("phase: %s\n", r.Phase)
	if r.CommitEnd > 0 {
		fmt.Printf("commit ends: %s\n", time.Unix(int64(r.CommitEnd), 0).UTC().Format(time.RFC3339))
	}
	if r.RevealEnd > 0 {
		fmt.Printf("reveal ends: %s\n", time.Unix(int64(r.RevealEnd), 0).UTC().Format(time.RFC3339))
	}
	if r.HighestBid != "" {
		fmt.Printf("highest bid: %s\n", r.HighestBid)
	}
	if r.Winner != "" {
		fmt.Printf("winner: %s\n", r.Winner)
	}
	fmt.Printf("pending bid: %v\n", r.HasBid)
	if r.HasBid || r.Reason != "" {
		fmt.Printf("can reveal: %v", r.CanReveal)
		if r.Reason != "" {
			fmt.Printf(" (%s)", r.Reason)
		}
		fmt.Println()
	}
	if r.Degraded {
		fmt.Println("warning: some contract reads failed; values may be stale")
	}
}

func vaultOrDefault(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	return config.DefaultVaultPath()
}

func resolveSecret(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	var aws secrets.Provider
	if strings.HasPrefix(ref, "aws:") {
		p, err := secrets.NewAWS(ctx)
		if err != nil {
			return "", err
		}
		aws = p
	}
	return secrets.NewResolver(aws).Resolve(ctx, ref)
}
