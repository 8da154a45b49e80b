package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func initCmd(a *app) *cobra.Command {
	var restore bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a wallet, or restore one from a recovery phrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.store.Restore(cmd.Context()); err == nil {
				return fmt.Errorf("a wallet already exists on this device; run reset first")
			}

			var existing string
			if restore {
				fmt.Fprint(cmd.OutOrStdout(), "Recovery phrase: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read recovery phrase: %w", err)
				}
				existing = strings.TrimSpace(line)
			}

			identity, mnemonic, err := a.store.DeriveOrRestore(cmd.Context(), existing)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Address: %s\n", identity.Address)
			if !restore {
				fmt.Fprintln(out, "\nWrite down this recovery phrase. It is the only way to restore the wallet:")
				fmt.Fprintf(out, "\n  %s\n\n", mnemonic)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&restore, "restore", false, "Read a recovery phrase from stdin")
	return cmd
}

func addressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the wallet address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := a.store.Restore(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), identity.Address)
			return nil
		},
	}
}

func resetCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the wallet from this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := newPrompter(cmd).confirm("Delete the wallet? Funds are lost without the recovery phrase")
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}
			if err := a.store.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wallet deleted")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
