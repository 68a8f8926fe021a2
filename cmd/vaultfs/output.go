package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	dimColor     = color.New(color.Faint)
)

func printSuccess(format string, args ...interface{}) {
	successColor.Fprintf(os.Stdout, "✓ "+format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	warnColor.Fprintf(os.Stderr, "! "+format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	infoColor.Fprintf(os.Stdout, format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		printError("encode json: %v", err)
	}
}

// printResult emits v as JSON or runs the human formatter.
func printResult(v interface{}, human func()) {
	if jsonOutput {
		printJSON(v)
		return
	}
	human()
}

func formatTime(t time.Time) string {
	return fmt.Sprintf("%s (%s)", t.Local().Format("2006-01-02 15:04:05"), humanize.Time(t))
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return dimColor.Sprint("never")
	}
	return formatTime(*t)
}

func formatUsers(users []string) string {
	if len(users) == 0 {
		return dimColor.Sprint("-")
	}
	return strings.Join(users, ", ")
}

func formatSize(n int) string {
	return humanize.Bytes(uint64(n))
}
