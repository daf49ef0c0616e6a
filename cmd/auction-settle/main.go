package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/NethermindEth/starknet.go/account"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/veilbid/veilbid-client/internal/bidstore"
	"github.com/veilbid/veilbid-client/internal/config"
	"github.com/veilbid/veilbid-client/internal/orchestrate"
	"github.com/veilbid/veilbid-client/internal/secrets"
	"github.com/veilbid/veilbid-client/internal/starkrpc"
)

func main() {
	var (
		rpcURL       = flag.String("rpc-url", "", "Starknet JSON-RPC endpoint (or "+config.EnvRPCURL+")")
		contractAddr = flag.String("contract", "", "auction contract address (or "+config.EnvContractAddress+")")
		accountAddr  = flag.String("account", "", "account address (or "+config.EnvAccountAddress+")")
		accountPub   = flag.String("account-public-key", "", "account public key hex (or "+config.EnvAccountPubKey+")")
		accountKey   = flag.String("account-key-ref", "env:VEILBID_ACCOUNT_KEY", "secret reference for the account private key")
		wait         = flag.Bool("wait", true, "wait for the transaction to be accepted")
		timeout      = flag.Duration("timeout", 5*time.Minute, "overall timeout")
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
	acctAddr, err := config.ParseFelt(config.Resolve(*accountAddr, config.EnvAccountAddress))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: parse --account: %v\n", err)
		os.Exit(2)
	}
	pubKey := config.Resolve(*accountPub, config.EnvAccountPubKey)
	if pubKey == "" {
		fmt.Fprintln(os.Stderr, "error: --account-public-key or "+config.EnvAccountPubKey+" is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	privKey, err := resolveSecret(ctx, *accountKey)
	if err != nil || privKey == "" {
		fmt.Fprintf(os.Stderr, "error: resolve account key %s: %v\n", *accountKey, err)
		os.Exit(2)
	}

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
	acct, err := account.NewAccount(provider, acctAddr, pubKey, account.SetNewMemKeystore(pubKey, utils.HexToBN(privKey)), 2)
	if err != nil {
		log.Error("init account", "err", err)
		os.Exit(1)
	}
	invoker, err := starkrpc.NewAccountInvoker(acct)
	if err != nil {
		log.Error("init invoker", "err", err)
		os.Exit(1)
	}
	writer, err := starkrpc.NewWriter(invoker, provider, contract, log)
	if err != nil {
		log.Error("init contract writer", "err", err)
		os.Exit(1)
	}
	vault, err := bidstore.New(bidstore.Config{Driver: bidstore.DriverMemory})
	if err != nil {
		log.Error("init bid vault", "err", err)
		os.Exit(1)
	}

	orch, err := orchestrate.New(orchestrate.Config{
		ContractAddress: contractHex,
		Account:         acctAddr,
	}, binding, writer, vault, log)
	if err != nil {
		log.Error("init orchestrator", "err", err)
		os.Exit(1)
	}

	tx, err := orch.Settle(ctx)
	if err != nil {
		log.Error("settle auction", "err", err)
		os.Exit(1)
	}
	fmt.Printf("settle submitted: %s\n", tx)

	if *wait {
		if err := writer.WaitConfirmed(ctx, tx); err != nil {
			log.Error("wait for settle", "tx", tx, "err", err)
			os.Exit(1)
		}
		fmt.Println("auction settled")
	}
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
