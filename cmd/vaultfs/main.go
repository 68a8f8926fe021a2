package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if vaultClient != nil {
			_ = vaultClient.Close()
		}
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		} else {
			printError("%v", err)
		}
		os.Exit(1)
	}
}
