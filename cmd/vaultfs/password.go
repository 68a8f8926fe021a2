package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// masterPasswordEnv supplies the master password non-interactively.
const masterPasswordEnv = "VAULTFS_MASTER_PASSWORD"

// masterPassword returns the vault master password from the environment or
// a terminal prompt.
func masterPassword() (string, error) {
	if pw := os.Getenv(masterPasswordEnv); pw != "" {
		return pw, nil
	}

	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("stdin is not a terminal; set %s", masterPasswordEnv)
	}

	pw, err := promptPassword("Master password: ")
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errors.New("empty master password")
	}
	return pw, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read password without echo
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // New line after password

	if err != nil {
		return "", err
	}

	return string(password), nil
}
