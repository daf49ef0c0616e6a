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

	"github.com/veilbid/veilbid-client/internal/bidstore"
	"github.com/veilbid/veilbid-client/internal/config"
	"github.com/veilbid/veilbid-client/internal/secrets"
)

func main() {
	var (
		contractAddr = flag.String("contract", "", "auction contract address scoping the record (or "+config.EnvContractAddress+")")
		vaultPath    = flag.String("vault", "", "pending-bid vault path (default ~/.veilbid/pending_bid.json)")
		vaultPassRef = flag.String("vault-pass-ref", "", "secret reference for the vault passphrase")
		showSecret   = flag.Bool("show-secret", false, "print the plaintext bid amount and nonce")
		clear        = flag.Bool("clear", false, "delete the stored record")
		timeout      = flag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	_, contractHex, err := config.Contract(*contractAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	passphrase, err := resolveSecret(ctx, *vaultPassRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: resolve vault passphrase: %v\n", err)
		os.Exit(2)
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

	if *clear {
		if err := vault.Clear(ctx); err != nil {
			log.Error("clear vault", "err", err)
			os.Exit(1)
		}
		fmt.Println("vault cleared")
		return
	}

	pending, ok, err := vault.Load(ctx, contractHex)
	if err != nil {
		if errors.Is(err, bidstore.ErrPassphrase) {
			fmt.Fprintln(os.Stderr, "error: wrong vault passphrase")
			os.Exit(1)
		}
		log.Error("load vault", "err", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Println("no pending bid for this contract")
		return
	}

	fmt.Printf("contract: %s\n", pending.ContractAddress)
	fmt.Printf("commitment: %s\n", pending.Commitment)
	if *showSecret {
		fmt.Printf("bid amount: %s\n", pending.BidAmount)
		fmt.Printf("nonce: %s\n", pending.Nonce)
	} else {
		fmt.Println("bid amount: (hidden, pass --show-secret)")
		fmt.Println("nonce: (hidden, pass --show-secret)")
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
