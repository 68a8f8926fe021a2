package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var shareCmd = &cobra.Command{
	Use:   "share <file-name> <user>...",
	Short: "Grant other users read access to a file",
	Long: `Share grants each listed user read access to your latest live file
with that name. Every target must be a known user other than you; if any
is not, nothing is granted and the rejected names are reported.`,
	Example: `  vaultfs share report.txt bob carol --user alice`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runShare,
}

var unshareCmd = &cobra.Command{
	Use:   "unshare <file-name> <user>",
	Short: "Revoke a user's access to a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runUnshare,
}

var sharedCmd = &cobra.Command{
	Use:   "shared",
	Short: "List files other users shared with you",
	Args:  cobra.NoArgs,
	RunE:  runShared,
}

func init() {
	rootCmd.AddCommand(shareCmd, unshareCmd, sharedCmd)
}

func runShare(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	fileName, targets := args[0], args[1:]

	user, err := requireUser()
	if err != nil {
		return err
	}

	svc, err := openVault(ctx)
	if err != nil {
		return err
	}

	rec, err := svc.Share(ctx, user, fileName, targets)
	if err != nil {
		return err
	}

	printResult(map[string]interface{}{
		"success":     true,
		"file_name":   rec.FileName,
		"shared_with": rec.SharedWith,
	}, func() {
		printSuccess("Shared %s with %s", rec.FileName, formatUsers(rec.SharedWith))
	})
	return nil
}

func runUnshare(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	fileName, grantee := args[0], args[1]

	user, err := requireUser()
	if err != nil {
		return err
	}

	svc, err := openVault(ctx)
	if err != nil {
		return err
	}

	if err := svc.Unshare(ctx, user, fileName, grantee); err != nil {
		return err
	}

	printResult(map[string]interface{}{
		"success": true,
	}, func() {
		printSuccess("Revoked %s's access to %s", grantee, fileName)
	})
	return nil
}

func runShared(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	user, err := requireUser()
	if err != nil {
		return err
	}

	svc, err := openVault(ctx)
	if err != nil {
		return err
	}

	grants, err := svc.ListShared(ctx, user)
	if err != nil {
		return err
	}

	printResult(grants, func() {
		if len(grants) == 0 {
			printInfo("Nothing is shared with %s", user)
			return
		}
		for _, g := range grants {
			fmt.Printf("%s/%s\n", g.Owner, g.FileName)
			fmt.Printf("  Shared: %s\n", formatTime(g.GrantedAt))
		}
		fmt.Printf("\nDownload with: vaultfs download <file-name> --from <owner>\n")
	})
	return nil
}
