package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultfs/internal/models"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Encrypt and store files",
	Long: `Upload encrypts each file under your active key and stores it in the
vault under its base name. Uploading a name that already exists keeps
both; the newest upload is the one downloads resolve to.`,
	Example: `  vaultfs upload report.txt --user alice
  vaultfs upload *.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

var downloadCmd = &cobra.Command{
	Use:   "download <file-name>",
	Short: "Decrypt a file from the vault",
	Example: `  vaultfs download report.txt --dest ./out
  vaultfs download report.txt --from alice --user bob`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <file-name>",
	Short: "Delete a file from the vault",
	Long: `Delete removes the encrypted blob and marks the record deleted. The
record stays for auditing and is visible with inspect.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your files",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file-name>",
	Short: "Show the latest record for a name, including deleted ones",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var (
	downloadDest string
	downloadFrom string
)

func init() {
	rootCmd.AddCommand(uploadCmd, downloadCmd, deleteCmd, listCmd, inspectCmd)

	downloadCmd.Flags().StringVarP(&downloadDest, "dest", "d", ".",
		"Destination directory")
	downloadCmd.Flags().StringVar(&downloadFrom, "from", "",
		"Owner of a file shared with you")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	user, err := requireUser()
	if err != nil {
		return err
	}

	svc, err := openVault(ctx)
	if err != nil {
		return err
	}

	var records []*models.FileRecord
	for _, path := range args {
		rec, err := svc.UploadFile(ctx, user, path)
		if err != nil {
			return fmt.Errorf("upload %s: %w", path, err)
		}
		records = append(records, rec)

		if !jsonOutput {
			size := 0
			if info, err := os.Stat(path); err == nil {
				size = int(info.Size())
			}
			printSuccess("Uploaded %s (%s)", rec.FileName, formatSize(size))
		}
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"files":   records,
		})
	}
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	fileName := args[0]

	user, err := requireUser()
	if err != nil {
		return err
	}

	svc, err := openVault(ctx)
	if err != nil {
		return err
	}

	dest, err := filepath.Abs(downloadDest)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}

	var outPath string
	if downloadFrom != "" {
		outPath, err = svc.DownloadSharedTo(ctx, downloadFrom, fileName, user, dest)
	} else {
		outPath, err = svc.DownloadTo(ctx, user, fileName, dest)
	}
	if err != nil {
		return err
	}

	printResult(map[string]interface{}{
		"success": true,
		"path":    outPath,
	}, func() {
		printSuccess("Downloaded %s to %s", fileName, outPath)
	})
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	fileName := args[0]

	user, err := requireUser()
	if err != nil {
		return err
	}

	svc, err := openVault(ctx)
	if err != nil {
		return err
	}

	if err := svc.Delete(ctx, user, fileName); err != nil {
		return err
	}

	printResult(map[string]interface{}{
		"success": true,
		"deleted": fileName,
	}, func() {
		printSuccess("Deleted %s", fileName)
	})
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	user, err := requireUser()
	if err != nil {
		return err
	}

	svc, err := openVault(ctx)
	if err != nil {
		return err
	}

	files, err := svc.List(ctx, user)
	if err != nil {
		return err
	}

	printResult(files, func() {
		if len(files) == 0 {
			printInfo("No files for %s", user)
			return
		}
		for _, f := range files {
			fmt.Printf("%s\n", f.FileName)
			fmt.Printf("  Uploaded:    %s\n", formatTime(f.UploadedAt))
			fmt.Printf("  Downloaded:  %s\n", formatOptionalTime(f.DownloadedAt))
			fmt.Printf("  Shared with: %s\n", formatUsers(f.SharedWith))
		}
		fmt.Printf("\n%d file(s)\n", len(files))
	})
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	fileName := args[0]

	user, err := requireUser()
	if err != nil {
		return err
	}

	svc, err := openVault(ctx)
	if err != nil {
		return err
	}

	rec, err := svc.Inspect(ctx, user, fileName)
	if err != nil {
		return err
	}

	printResult(rec, func() {
		fmt.Printf("%s (id %d)\n", rec.FileName, rec.ID)
		fmt.Printf("  State:       %s\n", rec.State())
		fmt.Printf("  Blob:        %s\n", rec.BlobPath)
		fmt.Printf("  Key:         %d\n", rec.KeyID)
		fmt.Printf("  Uploaded:    %s\n", formatTime(rec.UploadedAt))
		fmt.Printf("  Downloaded:  %s\n", formatOptionalTime(rec.DownloadedAt))
		fmt.Printf("  Deleted:     %s\n", formatOptionalTime(rec.DeletedAt))
		fmt.Printf("  Shared with: %s\n", formatUsers(rec.SharedWith))
	})
	return nil
}
