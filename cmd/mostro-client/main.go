// Package main provides a minimal example entrypoint wiring config, the key
// hierarchy, the relay pool, and the Trade Engine together for a single
// action. It exists to demonstrate the wiring, not as the project's CLI
// front-end (spec §4.H lists the full action surface; a real front-end would
// expose all of it with an interactive session, not one-shot flags).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mostro-trade/mostro-client/internal/config"
	"github.com/mostro-trade/mostro-client/internal/engine"
	"github.com/mostro-trade/mostro-client/internal/keys"
	"github.com/mostro-trade/mostro-client/internal/mostro"
	"github.com/mostro-trade/mostro-client/internal/oracle"
	"github.com/mostro-trade/mostro-client/internal/relay"
	"github.com/mostro-trade/mostro-client/internal/safety"
	"github.com/mostro-trade/mostro-client/internal/store"
	"github.com/mostro-trade/mostro-client/pkg/helpers"
	"github.com/mostro-trade/mostro-client/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.mostro-client", "Data directory")
		passphrase  = flag.String("passphrase", "", "Seed file passphrase (empty = unencrypted seed file)")
		action      = flag.String("action", "create", "Action to perform: create, cancel, query-status")
		orderID     = flag.String("order-id", "", "Order id, required for cancel/query-status")
		fiatCode    = flag.String("fiat-code", "usd", "Fiat currency code, for create")
		fiatAmount  = flag.Int64("fiat-amount", 50, "Fiat amount, for create")
		amountSats  = flag.Int64("amount-sats", 0, "Fixed sats amount, for create (0 = market price)")
		sell        = flag.Bool("sell", true, "Create a sell order instead of a buy order")
		timeout     = flag.Duration("timeout", 30*time.Second, "Overall timeout for the action")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("mostro-client %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*dataDir)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	if cfg.MostroPubKey == "" {
		log.Fatal("config has no mostro_pubkey set; edit the config file and retry", "path", config.ConfigPath(*dataDir))
	}

	seedPath := seedFilePath(*dataDir, cfg.SeedFile)

	h, wasNew, mnemonic, err := keys.LoadOrCreate(seedPath, *passphrase)
	if err != nil {
		log.Fatal("failed to load or create seed", "error", err)
	}
	if wasNew {
		log.Warn("generated a new seed; write this mnemonic down, it is shown only once", "mnemonic", mnemonic)
	}

	st, err := store.New(*dataDir)
	if err != nil {
		log.Fatal("failed to open store", "error", err)
	}
	defer st.Close()

	priceOracle := oracle.New(cfg.PriceAPI)
	safetyEnvelope := safety.New(cfg, *dataDir, priceOracle)
	pool := relay.NewPool(cfg.Relays)
	defer pool.Close()

	eng, err := engine.New(cfg, h, pool, safetyEnvelope, priceOracle, st, cfg.MostroPubKey)
	if err != nil {
		log.Fatal("failed to construct engine", "error", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var outcome engine.Outcome
	switch *action {
	case "create":
		kind := mostro.KindSell
		if !*sell {
			kind = mostro.KindBuy
		}
		if *amountSats > 0 {
			log.Info("creating order with a fixed amount", "btc", helpers.SatoshisToBTC(uint64(*amountSats)))
		}
		outcome, err = eng.CreateOrder(ctx, mostro.NewOrderInput{
			Kind:       kind,
			FiatCode:   *fiatCode,
			Amount:     *amountSats,
			FiatAmount: *fiatAmount,
		})
	case "cancel":
		if *orderID == "" {
			log.Fatal("cancel requires -order-id")
		}
		outcome, err = eng.Cancel(ctx, *orderID)
	case "query-status":
		if *orderID == "" {
			log.Fatal("query-status requires -order-id")
		}
		entry, qerr := eng.QueryStatus(ctx, *orderID)
		if qerr != nil {
			log.Fatal("query-status failed", "error", qerr)
		}
		fmt.Printf("order %s status=%s\n", entry.ID, entry.Status)
		return
	default:
		log.Fatal("unknown action", "action", *action)
	}

	if err != nil {
		log.Fatal("action failed", "action", *action, "error", err)
	}

	fmt.Printf("action=%s order_id=%s stale=%v message=%q\n", outcome.Action, outcome.OrderID, outcome.Stale, outcome.Message)
}

// seedFilePath resolves cfg.SeedFile (a bare filename by convention) against
// dataDir, the way the teacher resolves its storage paths relative to the
// data directory.
func seedFilePath(dataDir, seedFile string) string {
	if seedFile == "" {
		seedFile = "seed.json"
	}
	if filepath.IsAbs(seedFile) {
		return seedFile
	}
	home, _ := os.UserHomeDir()
	if len(dataDir) > 0 && dataDir[0] == '~' {
		dataDir = filepath.Join(home, dataDir[1:])
	}
	return filepath.Join(dataDir, seedFile)
}
