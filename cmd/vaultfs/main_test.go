package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultfs/internal/models"
)

func TestFormatters(t *testing.T) {
	color.NoColor = true

	assert.Equal(t, "-", formatUsers(nil))
	assert.Equal(t, "bob, carol", formatUsers([]string{"bob", "carol"}))
	assert.Equal(t, "never", formatOptionalTime(nil))
	assert.Equal(t, "1.0 kB", formatSize(1000))

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	assert.Contains(t, formatOptionalTime(&ts), "2024-03-01 12:00:00")
}

func TestMasterPasswordFromEnv(t *testing.T) {
	t.Setenv(masterPasswordEnv, "s3cret")

	pw, err := masterPassword()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
}

func TestRequireUser(t *testing.T) {
	username = ""
	_, err := requireUser()
	assert.ErrorContains(t, err, userEnv)

	username = "alice"
	t.Cleanup(func() { username = "" })
	user, err := requireUser()
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
}

func TestCommands(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "vaultfs.json")
	cfgJSON := fmt.Sprintf(`{
  "storage": {"vault_root": %q, "db_path": %q, "driver": "sqlite"},
  "log": {"level": "error"}
}`, filepath.Join(dir, "vault"), filepath.Join(dir, "db", "storage.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgJSON), 0600))

	src := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0600))

	t.Setenv(masterPasswordEnv, "correct horse battery staple")
	t.Setenv(userEnv, "")

	run := func(args ...string) error {
		rootCmd.SetArgs(append(args, "--config", cfgPath))
		return rootCmd.Execute()
	}
	t.Cleanup(func() { username = "" })

	require.NoError(t, run("rotate-key", "--user", "bob"))
	require.NoError(t, run("upload", src, "--user", "alice"))
	require.NoError(t, run("share", "report.txt", "bob", "--user", "alice"))

	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0700))
	require.NoError(t, run("download", "report.txt", "--dest", out, "--user", "alice"))
	data, err := os.ReadFile(filepath.Join(out, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, run("delete", "report.txt", "--user", "alice"))

	err = run("delete", "report.txt", "--user", "alice")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, run("inspect", "report.txt", "--user", "alice"))
	require.NoError(t, run("users"))

	assert.NoFileExists(t, filepath.Join(dir, "vault", "alice", "report.txt.enc"))
}
