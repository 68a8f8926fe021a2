package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultfs/internal/config"
)

var rotateKeyCmd = &cobra.Command{
	Use:   "rotate-key",
	Short: "Issue a new active key",
	Long: `Rotate-key issues a new key for your future uploads. Files already in
the vault stay encrypted under the key they were uploaded with.`,
	Args: cobra.NoArgs,
	RunE: runRotateKey,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users known to the vault",
	Args:  cobra.NoArgs,
	RunE:  runUsers,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configExampleCmd = &cobra.Command{
	Use:   "example <path>",
	Short: "Write an example config file",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigExample,
}

func init() {
	rootCmd.AddCommand(rotateKeyCmd, usersCmd, configCmd)
	configCmd.AddCommand(configExampleCmd)
}

func runRotateKey(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	user, err := requireUser()
	if err != nil {
		return err
	}

	svc, err := openVault(ctx)
	if err != nil {
		return err
	}

	keyID, err := svc.RotateKey(ctx, user)
	if err != nil {
		return err
	}

	printResult(map[string]interface{}{
		"success": true,
		"key_id":  keyID,
	}, func() {
		printSuccess("Issued key %d for %s", keyID, user)
	})
	return nil
}

func runUsers(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	svc, err := openVault(ctx)
	if err != nil {
		return err
	}

	users, err := svc.Users(ctx)
	if err != nil {
		return err
	}

	printResult(users, func() {
		if len(users) == 0 {
			printInfo("No users yet")
			return
		}
		for _, u := range users {
			fmt.Printf("%-24s %s\n", u.Username, formatTime(u.CreatedAt))
		}
	})
	return nil
}

func runConfigExample(cmd *cobra.Command, args []string) error {
	if err := config.SaveExample(args[0]); err != nil {
		return err
	}

	printResult(map[string]interface{}{
		"success": true,
		"path":    args[0],
	}, func() {
		printSuccess("Wrote example config to %s", args[0])
		printWarning("The master password is never stored in config; use %s or the prompt", masterPasswordEnv)
	})
	return nil
}
