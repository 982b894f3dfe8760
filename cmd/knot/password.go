package main

import (
	"errors"
	"fmt"

	"github.com/forest6511/knot/pkg/vault"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// passwordCmd is the parent command for password operations.
var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Master password operations",
}

// passwordChangeCmd changes the master password.
var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the master password",
	Long: `Change the master password by re-wrapping the data encryption key (DEK).

Notes are not re-encrypted. The salt and wrapped key are replaced together;
an interrupted change is completed or undone on the next run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !v.IsUnlocked() {
			if err := printLockoutWait(); err != nil {
				return err
			}
		}

		fmt.Println("Changing master password...")

		currentPassword, err := readPassword("Enter current password: ")
		if err != nil {
			return err
		}
		defer wipe(currentPassword)

		// The current password unlocks the vault as well
		if !v.IsUnlocked() {
			if err := v.Unlock(string(currentPassword)); err != nil {
				return err
			}
		}
		defer v.Lock()

		newPassword, err := readNewPassword("Enter new password: ")
		if err != nil {
			return err
		}
		defer wipe(newPassword)

		if err := v.ChangePassword(string(currentPassword), string(newPassword)); err != nil {
			return err
		}

		color.Green("Password changed successfully!")
		return nil
	},
}

// recoverCmd resets the master password with the recovery phrase.
var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Set a new master password using the recovery phrase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRecoverable(); err != nil {
			return err
		}

		phrase, err := readPassword("Enter recovery phrase: ")
		if err != nil {
			return err
		}
		defer wipe(phrase)

		newPassword, err := readNewPassword("Enter new master password: ")
		if err != nil {
			return err
		}
		defer wipe(newPassword)

		if err := v.Recover(string(phrase), string(newPassword)); err != nil {
			return err
		}
		defer v.Lock()

		fmt.Println("Master password reset. The recovery phrase is still valid.")
		return nil
	},
}

// checkRecoverable fails before any prompt when there is nothing to
// recover, no recovery phrase, or attempts are refused.
func checkRecoverable() error {
	exists, err := v.Exists()
	if err != nil {
		return err
	}
	if !exists {
		return vault.ErrVaultNotFound
	}
	ok, err := v.HasRecovery()
	if err != nil {
		return err
	}
	if !ok {
		return vault.ErrRecoveryNotConfigured
	}
	return printLockoutWait()
}

// recoveryCmd is the parent command for recovery phrase operations.
var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Recovery phrase operations",
}

// recoveryResetCmd replaces the recovery phrase.
var recoveryResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Create a new recovery phrase, invalidating the old one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		phrase, err := v.ResetRecoveryPhrase()
		if err != nil {
			if errors.Is(err, vault.ErrVaultLocked) {
				return errors.New("vault must be unlocked")
			}
			return err
		}
		printRecoveryPhrase(phrase)
		return nil
	},
}

func init() {
	passwordCmd.AddCommand(passwordChangeCmd)
	recoveryCmd.AddCommand(recoveryResetCmd)
}
