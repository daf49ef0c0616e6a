package main

import (
	"context"
	"errors"
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
		vaultPath    = flag.String("vault", "", "pending-bid vault path (default ~/.veilbid/pending_bid.json)")
		vaultPassRef = flag.String("vault-pass-ref", "", "secret reference for the vault passphrase")
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
	passphrase, err := resolveSecret(ctx, *vaultPassRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: resolve vault passphrase: %v\n", err)
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
	vault, err := bidstore.New(bidstore.Config{
		Driver:     bidstore.DriverFile,
		Path:       vaultOrDefault(*vaultPath),
		Passphrase: passphrase,
	})
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

	tx, err := orch.RevealBid(ctx)
	if err != nil {
		var blocked *orchestrate.RevealBlockedError
		switch {
		case errors.As(err, &blocked):
			fmt.Fprintf(os.Stderr, "cannot reveal: %s\n", blocked.Reason)
			os.Exit(1)
		case tx != nil:
			// Submitted but not confirmed: the vault still holds the secret.
			log.Error("reveal unconfirmed", "tx", tx, "err", err)
			fmt.Fprintln(os.Stderr, "reveal submitted but not confirmed; the vault is kept, retry to check again")
			os.Exit(1)
		default:
			log.Error("reveal bid", "err", err)
			os.Exit(1)
		}
	}
	fmt.Printf("reveal confirmed: %s\n", tx)
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
