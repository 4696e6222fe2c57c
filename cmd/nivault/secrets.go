package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Hussein-Mazeh/nivault/krypto"
)

// promptValue reads a secret value the same way as a password so it never
// lands in shell history.
func (a *app) promptValue() (string, error) {
	b, err := a.promptPassword("Secret value: ")
	if err != nil {
		return "", err
	}
	defer krypto.Wipe(b)
	if len(b) == 0 {
		return "", userError{msg: "secret value cannot be empty"}
	}
	return string(b), nil
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <vault> <secret>",
		Short: "Store a new secret",
		Args:  userArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.unlock(cmd.Context(), args[0]); err != nil {
				return err
			}
			value, err := a.promptValue()
			if err != nil {
				return err
			}
			if err := a.svc.Add(cmd.Context(), args[1], value); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s Secret %s saved\n", successMark("✓"), highlight(args[1]))
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <vault> <secret>",
		Short: "Print the value of a secret",
		Args:  userArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.unlock(cmd.Context(), args[0]); err != nil {
				return err
			}
			value, err := a.svc.Get(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, value)
			return nil
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update <vault> <secret>",
		Short: "Replace the value of a secret",
		Args:  userArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.unlock(cmd.Context(), args[0]); err != nil {
				return err
			}
			value, err := a.promptValue()
			if err != nil {
				return err
			}
			err = a.confirmPassword(func(master []byte) error {
				return a.svc.Update(cmd.Context(), master, args[1], value)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s Secret %s updated\n", successMark("✓"), highlight(args[1]))
			return nil
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <vault> <secret>",
		Aliases: []string{"rm"},
		Short:   "Delete a secret",
		Args:    userArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.unlock(cmd.Context(), args[0]); err != nil {
				return err
			}
			err := a.confirmPassword(func(master []byte) error {
				return a.svc.Delete(cmd.Context(), master, args[1])
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s Secret %s removed\n", successMark("✓"), highlight(args[1]))
			return nil
		},
	}
}
