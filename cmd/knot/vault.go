package main

import (
	"fmt"
	"strings"

	"github.com/forest6511/knot/pkg/lockout"
	"github.com/forest6511/knot/pkg/store"
	"github.com/forest6511/knot/pkg/vault"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var setupRecovery bool

func init() {
	setupCmd.Flags().BoolVar(&setupRecovery, "recovery", false, "Also create a 12-word recovery phrase")
}

// setupCmd creates a new vault
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create a new vault",
	Long: `Create a new vault protected by a master password.

With --recovery a 12-word recovery phrase is shown once. It can reset the
master password if it is forgotten. It is not stored anywhere.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Creating new vault...")

		password, err := readNewPassword("Enter master password: ")
		if err != nil {
			return err
		}
		defer wipe(password)

		result, err := v.Setup(string(password), setupRecovery)
		if err != nil {
			return err
		}
		defer v.Lock()

		color.Green("Vault created at %s", v.Path())
		if result.RecoveryPhrase != "" {
			printRecoveryPhrase(result.RecoveryPhrase)
		}
		return nil
	},
}

// unlockCmd checks the master password
var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Verify the master password and open the note store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		h, err := v.Store()
		if err != nil {
			return err
		}
		if st, ok := h.(*store.Store); ok {
			n, err := st.Count()
			if err != nil {
				return fmt.Errorf("failed to count notes: %w", err)
			}
			fmt.Printf("Vault unlocked: %d notes\n", n)
			return nil
		}
		fmt.Println("Vault unlocked")
		return nil
	},
}

// statusCmd shows the vault state without asking for a password
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		state := v.State()
		fmt.Printf("Vault:    %s\n", v.Path())
		fmt.Printf("State:    %s\n", state)
		if state != vault.StateLocked {
			if state == vault.StateCorrupted {
				_, err := v.Exists()
				return err
			}
			return nil
		}

		recovery, err := v.HasRecovery()
		if err != nil {
			return err
		}
		fmt.Printf("Recovery: %s\n", enabled(recovery))

		if remaining, locked := v.LockoutStatus(); locked {
			fmt.Printf("Lockout:  %ds remaining\n", lockout.RemainingSeconds(remaining))
		} else {
			fmt.Printf("Attempts: %d remaining\n", v.RemainingAttempts())
		}

		if info, err := v.CheckDiskSpace(); err == nil && info.UsedPct >= vault.DiskWarningPercent {
			color.Yellow("Warning:  disk is %d%% full", info.UsedPct)
		}
		return nil
	},
}

func enabled(b bool) string {
	if b {
		return "configured"
	}
	return "not configured"
}

func printRecoveryPhrase(phrase string) {
	words := strings.Fields(phrase)
	fmt.Println()
	color.Yellow("Recovery phrase (write it down, it will not be shown again):")
	fmt.Println()
	for i, w := range words {
		fmt.Printf("  %2d. %s\n", i+1, w)
	}
	fmt.Println()
}
