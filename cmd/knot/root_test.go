package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest6511/knot/pkg/crypto"
	"github.com/forest6511/knot/pkg/vault"

	"golang.org/x/term"
)

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"wrong password",
			&vault.AuthError{Op: "unlock", Err: vault.ErrInvalidPassword, RemainingAttempts: 3},
			"incorrect password (3 attempts remaining)",
		},
		{
			"last attempt",
			&vault.AuthError{Op: "unlock", Err: vault.ErrInvalidPassword, RemainingAttempts: 1},
			"incorrect password (1 attempt remaining)",
		},
		{
			"wrong phrase",
			&vault.AuthError{Op: "recover", Err: vault.ErrInvalidRecoveryPhrase, RemainingAttempts: 2},
			"incorrect recovery phrase (2 attempts remaining)",
		},
		{
			"locked out",
			fmt.Errorf("wrapped: %w", &vault.AuthError{Op: "unlock", Err: vault.ErrTooManyAttempts, LockoutSeconds: 27}),
			"too many failed attempts, try again in 27 seconds",
		},
		{"no vault", vault.ErrVaultNotFound, "no vault found, run 'knot setup' first"},
		{"exists", vault.ErrVaultAlreadyExists, "a vault already exists at this location"},
		{"no recovery", vault.ErrRecoveryNotConfigured, "this vault has no recovery phrase"},
		{"mismatch", fmt.Errorf("%w: bad", vault.ErrKeyMismatch), "the vault key does not match the note store"},
		{"disk", fmt.Errorf("%w: 10 KB", vault.ErrInsufficientDisk), "not enough free disk space"},
		{"validation", vault.ErrPasswordTooShort, vault.ErrPasswordTooShort.Error()},
		{"other", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeError(tt.err); got != tt.want {
				t.Errorf("describeError() = %q, want %q", got, tt.want)
			}
		})
	}

	got := describeError(fmt.Errorf("%w: salt has 3 bytes", vault.ErrVaultCorrupted))
	if !strings.HasPrefix(got, "vault data is corrupted: ") {
		t.Errorf("describeError(corrupt) = %q", got)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"24h", 24 * time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"1y", 365 * 24 * time.Hour, false},
		{"d", 0, true},
		{"xd", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestReadLine(t *testing.T) {
	old := stdinReader
	t.Cleanup(func() { stdinReader = old })

	stdinReader = bufio.NewReader(strings.NewReader("first\r\nsecond"))
	for _, want := range []string{"first", "second"} {
		got, err := readLine()
		if err != nil {
			t.Fatalf("readLine() error = %v", err)
		}
		if got != want {
			t.Errorf("readLine() = %q, want %q", got, want)
		}
	}
	if _, err := readLine(); err == nil {
		t.Error("readLine() at EOF should fail")
	}
}

// runCLI executes the root command with piped input.
func runCLI(t *testing.T, input string, args ...string) error {
	t.Helper()
	old := stdinReader
	t.Cleanup(func() { stdinReader = old })
	stdinReader = bufio.NewReader(strings.NewReader(input))

	setupRecovery = false
	vaultPath = ""
	configPath = ""
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if v != nil {
		v.Lock()
	}
	return err
}

func TestCLIFlow(t *testing.T) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		t.Skip("stdin is a terminal")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("KNOT_LOG_LEVEL", "disabled")
	dir := filepath.Join(t.TempDir(), "vault")

	if err := runCLI(t, "correct123\ncorrect123\n", "--vault", dir, "setup", "--recovery"); err != nil {
		t.Fatalf("setup error = %v", err)
	}
	if err := runCLI(t, "correct123\n", "--vault", dir, "unlock"); err != nil {
		t.Fatalf("unlock error = %v", err)
	}

	err := runCLI(t, "wrongpass1\n", "--vault", dir, "unlock")
	var authErr *vault.AuthError
	if !errors.As(err, &authErr) || authErr.RemainingAttempts != 4 {
		t.Fatalf("unlock with wrong password error = %v", err)
	}

	if err := runCLI(t, "", "--vault", dir, "status"); err != nil {
		t.Errorf("status error = %v", err)
	}

	phrase, err := crypto.GenerateRecoveryPhrase()
	if err != nil {
		t.Fatal(err)
	}
	err = runCLI(t, phrase+"\nnewpassword1\nnewpassword1\n", "--vault", dir, "recover")
	if !errors.Is(err, vault.ErrInvalidRecoveryPhrase) {
		t.Errorf("recover with unrelated phrase error = %v", err)
	}

	err = runCLI(t, "correct123\ncorrect123\n", "--vault", dir, "setup")
	if !errors.Is(err, vault.ErrVaultAlreadyExists) {
		t.Errorf("second setup error = %v, want ErrVaultAlreadyExists", err)
	}
}

func TestCLIPasswordChange(t *testing.T) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		t.Skip("stdin is a terminal")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("KNOT_LOG_LEVEL", "disabled")
	dir := filepath.Join(t.TempDir(), "vault")

	if err := runCLI(t, "correct123\ncorrect123\n", "--vault", dir, "setup"); err != nil {
		t.Fatalf("setup error = %v", err)
	}

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"wrong current password", "wrongpass1\nnewpassword1\nnewpassword1\n", vault.ErrInvalidPassword},
		{"current password asked once", "correct123\nnewpassword1\nnewpassword1\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runCLI(t, tt.input, "--vault", dir, "password", "change")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("password change error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("password change error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := runCLI(t, "newpassword1\n", "--vault", dir, "unlock"); err != nil {
		t.Errorf("unlock with new password error = %v", err)
	}
	err := runCLI(t, "correct123\n", "--vault", dir, "unlock")
	if !errors.Is(err, vault.ErrInvalidPassword) {
		t.Errorf("unlock with old password error = %v, want ErrInvalidPassword", err)
	}
}

func TestCLIRecoverWithoutVault(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("KNOT_LOG_LEVEL", "disabled")

	tests := []struct {
		name string
		dir  string
	}{
		{"missing directory", filepath.Join(t.TempDir(), "nope")},
		{"empty directory", t.TempDir()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runCLI(t, "", "--vault", tt.dir, "recover")
			if !errors.Is(err, vault.ErrVaultNotFound) {
				t.Errorf("recover error = %v, want ErrVaultNotFound", err)
			}
			if got := describeError(err); got != "no vault found, run 'knot setup' first" {
				t.Errorf("describeError() = %q", got)
			}
		})
	}
}
