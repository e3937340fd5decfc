// Command mirrorbot is the copy-trading pipeline's entry point. It loads
// configuration, sets up logging and signal handling, and dispatches to one
// of the subcommands:
//
//	mirrorbot -config config.toml run-watcher        chain watcher loop
//	mirrorbot -config config.toml run-worker         signal worker loop
//	mirrorbot -config config.toml vault add <name>   store a secret read from stdin
//	mirrorbot -config config.toml vault list         list stored key refs
//	mirrorbot -config config.toml signal mock ...    inject a synthetic signal
//
// Exit codes: 0 on success, 2 on configuration or usage errors, 1 on fatal
// runtime errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mirrorbot/mirrorbot/internal/app"
	"github.com/mirrorbot/mirrorbot/internal/config"
	"github.com/mirrorbot/mirrorbot/internal/domain"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "run-watcher":
		err = application.WatcherMode(ctx)
	case "run-worker":
		err = application.WorkerMode(ctx)
	case "vault":
		return runVault(ctx, application, args[1:])
	case "signal":
		return runSignal(ctx, application, cfg.Chain.ChainID, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage()
		return 2
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fatal", "error", err.Error())
		return 1
	}
	logger.Info("shut down cleanly")
	return 0
}

// runVault handles the vault subcommands. The secret for "add" is read from
// stdin so it never lands in shell history or process listings.
func runVault(ctx context.Context, application *app.App, args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	v, err := application.WireVault(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vault: %v\n", err)
		return 1
	}

	switch args[0] {
	case "add":
		if len(args) != 2 || args[1] == "" {
			fmt.Fprintln(os.Stderr, "usage: mirrorbot vault add <name>")
			return 2
		}
		name := args[1]

		raw, err := io.ReadAll(io.LimitReader(os.Stdin, 4096))
		if err != nil {
			fmt.Fprintf(os.Stderr, "vault: read secret: %v\n", err)
			return 1
		}
		secret := strings.TrimSpace(string(raw))
		if secret == "" {
			fmt.Fprintln(os.Stderr, "vault: empty secret on stdin")
			return 2
		}

		if err := v.AddSecret(ctx, name, secret); err != nil {
			fmt.Fprintf(os.Stderr, "vault: %v\n", err)
			return 1
		}
		fmt.Printf("stored vault://%s\n", name)
		return 0

	case "list":
		keys, err := v.List(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vault: %v\n", err)
			return 1
		}
		for _, k := range keys {
			fmt.Printf("vault://%s\t%s\n", k.Name, k.CreatedAt.UTC().Format(time.RFC3339))
		}
		return 0

	default:
		fmt.Fprintf(os.Stderr, "unknown vault command %q\n", args[0])
		usage()
		return 2
	}
}

// runSignal handles the signal subcommands. "mock" injects a synthetic trade
// signal so the worker path can be exercised without waiting for a source
// wallet to trade on chain.
func runSignal(ctx context.Context, application *app.App, chainID int64, args []string) int {
	if len(args) == 0 || args[0] != "mock" {
		usage()
		return 2
	}

	fs := flag.NewFlagSet("signal mock", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	wallet := fs.String("wallet", "", "source wallet address the signal is attributed to")
	side := fs.String("side", "buy", "trade side: buy or sell")
	token := fs.String("token", "", "outcome token id")
	notional := fs.Float64("notional", 0, "source notional in USDC")
	price := fs.Float64("price", 0, "source price, omit when unknown")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	if *wallet == "" || *token == "" || *notional <= 0 {
		fmt.Fprintln(os.Stderr, "usage: mirrorbot signal mock -wallet <addr> -token <id> -notional <usdc> [-side buy|sell] [-price <p>]")
		return 2
	}
	s := domain.Side(strings.ToLower(*side))
	if s != domain.SideBuy && s != domain.SideSell {
		fmt.Fprintf(os.Stderr, "signal: invalid side %q\n", *side)
		return 2
	}

	signals, err := application.WireSignals(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signal: %v\n", err)
		return 1
	}

	var srcPrice *float64
	if *price > 0 {
		srcPrice = price
	}
	sig := domain.NewMockSignal(chainID, strings.ToLower(*wallet), s, *token, *notional, srcPrice)
	if _, err := signals.Insert(ctx, &sig); err != nil {
		fmt.Fprintf(os.Stderr, "signal: %v\n", err)
		return 1
	}
	fmt.Printf("injected signal %d (%s)\n", sig.ID, sig.TxHash)
	return 0
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: mirrorbot -config <path> <command>

commands:
  run-watcher        run the chain watcher loop
  run-worker         run the signal worker loop
  vault add <name>   store a secret read from stdin
  vault list         list stored key refs
  signal mock        inject a synthetic trade signal for paper-mode testing
`)
}
