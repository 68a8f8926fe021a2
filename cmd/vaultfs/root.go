package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultfs/internal/client"
	"github.com/TheMichaelB/vaultfs/internal/config"
	"github.com/TheMichaelB/vaultfs/internal/events"
	"github.com/TheMichaelB/vaultfs/internal/services/vault"
)

// userEnv names the variable the login layer uses to hand over the
// authenticated username.
const userEnv = "VAULTFS_USER"

var (
	cfgFile    string
	username   string
	jsonOutput bool
	logLevel   string

	cfg    *config.Config
	logger *events.Logger

	// Opened lazily by commands that touch the vault.
	vaultClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "vaultfs",
	Short: "Per-user encrypted file vault",
	Long: `vaultfs stores files encrypted under a per-user key and keeps a
metadata index of uploads, downloads, deletions and shares.

The acting user is taken from --user or VAULTFS_USER; authenticating
that user is the job of the surrounding login layer.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initApp,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if vaultClient != nil {
			c := vaultClient
			vaultClient = nil
			return c.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file (default: vaultfs.{json,yaml} in ., ~/.config/vaultfs or ~/.vaultfs)")
	rootCmd.PersistentFlags().StringVarP(&username, "user", "u", "",
		"Authenticated username (default: $VAULTFS_USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
}

// initApp loads configuration and the logger for every command.
func initApp(cmd *cobra.Command, args []string) error {
	loaded, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if username == "" {
		username = os.Getenv(userEnv)
	}

	return nil
}

// requireUser returns the acting username or an error naming both sources.
func requireUser() (string, error) {
	if username == "" {
		return "", fmt.Errorf("no user: pass --user or set %s", userEnv)
	}
	return username, nil
}

// openVault unlocks the metadata store and wires the vault service.
func openVault(ctx context.Context) (*vault.Service, error) {
	if vaultClient != nil {
		return vaultClient.Vault, nil
	}

	secret, err := masterPassword()
	if err != nil {
		return nil, fmt.Errorf("read master password: %w", err)
	}

	c, err := client.New(ctx, cfg, secret, logger)
	if err != nil {
		return nil, err
	}
	vaultClient = c

	return c.Vault, nil
}
