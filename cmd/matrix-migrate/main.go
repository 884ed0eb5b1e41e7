// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/matrix-migrate/lib/config"
	"github.com/bureau-foundation/matrix-migrate/lib/logging"
	"github.com/bureau-foundation/matrix-migrate/lib/process"
	"github.com/bureau-foundation/matrix-migrate/lib/version"
	"github.com/bureau-foundation/matrix-migrate/migrate"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("matrix-migrate", pflag.ContinueOnError)
	config.AddFlags(flagSet)
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	printConfig := flagSet.String("print-config", "", "print the resolved configuration, secrets masked, as toml or yaml and exit")
	flagSet.Lookup("print-config").NoOptDefVal = "toml"

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	if *showVersion {
		fmt.Fprintf(stdout, "matrix-migrate %s\n", version.Info())
		return nil
	}

	configPath, _ := flagSet.GetString("config")
	cfg, err := config.Load(configPath, flagSet)
	if err != nil {
		return err
	}
	if *printConfig != "" {
		return cfg.Redacted().Write(stdout, *printConfig)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	output, err := logging.New(logging.Config{Verbose: cfg.Verbose, FilePath: cfg.LogFile})
	if err != nil {
		return err
	}
	defer output.Close()
	slog.SetDefault(output.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrateAccounts(ctx, cfg, output.Logger); err != nil {
		// The console sees the error through process.Fatal; the file
		// needs its own copy.
		output.File.Error("migration failed", "error", err)
		return err
	}
	return nil
}

func migrateAccounts(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	source, err := session("source", cfg.Old)
	if err != nil {
		return err
	}
	defer closeSession(source)
	destination, err := session("destination", cfg.New)
	if err != nil {
		return err
	}
	defer closeSession(destination)

	var ledger *migrate.Ledger
	if cfg.Ledger != "" {
		ledger, err = migrate.OpenLedger(cfg.Ledger, logger)
		if err != nil {
			return err
		}
		defer ledger.Close()
	}

	metrics := migrate.NewMetrics()
	migrator, err := migrate.New(migrate.Config{
		Source:      source,
		Destination: destination,
		Authenticator: &migrate.HTTPAuthenticator{
			HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
			Logger:     logger,
			UserAgent:  version.UserAgent(),
		},
		Strict:   cfg.Strict,
		Ledger:   ledger,
		SendRate: cfg.SendRate,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	logger.Info("migrating", "from", cfg.Old.Server, "to", cfg.New.Server, "version", version.Info())
	summary, runErr := migrator.Run(ctx)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("cannot write metrics", "error", err)
		}
	}
	logger.Info("summary",
		"rooms_seen", summary.RoomsSeen,
		"rooms_migrated", summary.RoomsMigrated,
		"rooms_skipped", summary.RoomsSkipped,
		"events_fetched", summary.EventsFetched,
		"events_posted", summary.EventsPosted,
		"events_skipped", summary.EventsSkipped,
		"media", humanize.IBytes(uint64(summary.MediaBytes)),
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return runErr
}

// session turns a configured account into a migrate.Session with its
// secrets in locked memory.
func session(role string, account config.Account) (migrate.Session, error) {
	password, token, err := account.Credentials()
	if err != nil {
		return migrate.Session{}, fmt.Errorf("%s credentials: %w", role, err)
	}
	return migrate.Session{
		Role:     role,
		Server:   account.Server,
		User:     account.User,
		Password: password,
		Token:    token,
	}, nil
}

func closeSession(session migrate.Session) {
	if session.Password != nil {
		session.Password.Close()
	}
	if session.Token != nil {
		session.Token.Close()
	}
}
