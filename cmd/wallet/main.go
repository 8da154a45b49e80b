package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tuncanbit/paylink/internal/application/credential"
	"github.com/tuncanbit/paylink/internal/infrastructure/secretstore"
	"github.com/tuncanbit/paylink/pkg/config"
	"github.com/tuncanbit/paylink/pkg/logger"
)

var Version = "dev"

// app is shared by the subcommands and built in PersistentPreRunE.
type app struct {
	cfg    *config.Config
	store  *credential.Store
	logger zerolog.Logger
	close  func()
}

func main() {
	a := &app{close: func() {}}

	if err := newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		a.close()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var configPath string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "wallet",
		Short:         "Pay terminal payment links from this device",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), configPath, verbose)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddCommand(initCmd(a))
	rootCmd.AddCommand(addressCmd(a))
	rootCmd.AddCommand(payCmd(a))
	rootCmd.AddCommand(resetCmd(a))

	return rootCmd
}

func (a *app) open(ctx context.Context, configPath string, verbose bool) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = zerolog.Nop()
	if verbose {
		logCfg := cfg.Logger
		logCfg.Pretty = true
		if logCfg.Level == "" {
			logCfg.Level = "debug"
		}
		a.logger = logger.NewWithWriter(logCfg, os.Stderr)
	}

	secrets, closeSecrets, err := openSecrets(ctx, cfg)
	if err != nil {
		return err
	}

	a.store = credential.New(secrets, a.logger)
	a.close = func() {
		a.store.Close()
		closeSecrets()
		a.close = func() {}
	}
	return nil
}

func openSecrets(ctx context.Context, cfg *config.Config) (credential.SecretStore, func(), error) {
	switch cfg.Wallet.SecretStore {
	case "redis":
		client, err := secretstore.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return secretstore.NewRedisStore(client, cfg.Wallet.SecretKey), func() { client.Close() }, nil
	default:
		return secretstore.NewFileStore(cfg.Wallet.SecretFile), func() {}, nil
	}
}
