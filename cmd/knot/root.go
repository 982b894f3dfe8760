package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/forest6511/knot/internal/config"
	"github.com/forest6511/knot/internal/logging"
	"github.com/forest6511/knot/pkg/audit"
	"github.com/forest6511/knot/pkg/lockout"
	"github.com/forest6511/knot/pkg/vault"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	vaultPath  string

	cfg    *config.Config
	logger zerolog.Logger
	v      *vault.Vault
)

var rootCmd = &cobra.Command{
	Use:           "knot",
	Short:         "knot is a local encrypted notes vault",
	Long:          `Keeps notes in an encrypted local vault protected by a master password and an optional recovery phrase.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE loads configuration and builds the Vault for every subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		if vaultPath != "" {
			cfg.VaultDir = vaultPath
		}

		logger, err = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}

		opts := []vault.Option{
			vault.WithLogger(logger),
			vault.WithAuditSource(audit.SourceCLI),
			vault.WithAutoLock(cfg.AutoLock),
		}
		if !cfg.AuditEnabled() {
			opts = append(opts, vault.WithAudit(nil))
		}
		v = vault.New(cfg.VaultDir, opts...)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.config/knot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&vaultPath, "vault", "", "Vault directory (overrides config and "+config.EnvVaultDir+")")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(passwordCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(recoveryCmd)
	rootCmd.AddCommand(auditCmd)
}

// loadConfig reads --config if given, otherwise the default file if present.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath, false)
	}
	path, err := config.DefaultPath()
	if err != nil {
		c := config.Default()
		return c, c.Validate()
	}
	return config.Load(path, true)
}

// ensureUnlocked prompts for the master password and unlocks the vault.
func ensureUnlocked() error {
	if v.IsUnlocked() {
		return nil
	}
	if err := printLockoutWait(); err != nil {
		return err
	}

	password, err := readPassword("Enter master password: ")
	if err != nil {
		return err
	}
	defer wipe(password)

	return v.Unlock(string(password))
}

// printLockoutWait fails early while attempts are refused, before prompting.
func printLockoutWait() error {
	if remaining, locked := v.LockoutStatus(); locked {
		return &vault.AuthError{
			Op:             "unlock",
			Err:            vault.ErrTooManyAttempts,
			LockoutSeconds: max(lockout.RemainingSeconds(remaining), 1),
		}
	}
	return nil
}

// describeError turns an error into a message for the terminal.
func describeError(err error) string {
	var authErr *vault.AuthError
	if errors.As(err, &authErr) {
		if authErr.LockedOut() {
			return fmt.Sprintf("too many failed attempts, try again in %d seconds", authErr.LockoutSeconds)
		}
		what := "incorrect password"
		if errors.Is(authErr, vault.ErrInvalidRecoveryPhrase) {
			what = "incorrect recovery phrase"
		}
		if authErr.RemainingAttempts == 1 {
			return what + " (1 attempt remaining)"
		}
		return fmt.Sprintf("%s (%d attempts remaining)", what, authErr.RemainingAttempts)
	}

	switch {
	case errors.Is(err, vault.ErrVaultNotFound):
		return "no vault found, run 'knot setup' first"
	case errors.Is(err, vault.ErrVaultAlreadyExists):
		return "a vault already exists at this location"
	case errors.Is(err, vault.ErrRecoveryNotConfigured):
		return "this vault has no recovery phrase"
	case errors.Is(err, vault.ErrKeyMismatch):
		return "the vault key does not match the note store"
	case errors.Is(err, vault.ErrInsufficientDisk):
		return "not enough free disk space"
	}

	switch vault.KindOf(err) {
	case vault.KindCorruption:
		return fmt.Sprintf("vault data is corrupted: %v", err)
	default:
		return err.Error()
	}
}
