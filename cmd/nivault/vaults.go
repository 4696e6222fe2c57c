package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Hussein-Mazeh/nivault/krypto"
)

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <vault>",
		Short: "Create a new empty vault",
		Args:  userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			master, err := a.promptPassword("New master password: ")
			if err != nil {
				return err
			}
			defer krypto.Wipe(master)
			repeat, err := a.promptPassword("Repeat master password: ")
			if err != nil {
				return err
			}
			defer krypto.Wipe(repeat)
			if !bytes.Equal(master, repeat) {
				return userError{msg: "passwords do not match"}
			}

			err = a.withSpinner("Creating "+name+"...", func() error {
				return a.svc.Create(cmd.Context(), name, master)
			})
			if err != nil {
				return err
			}
			info, err := a.svc.Info(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s Vault %s created at %s\n", successMark("✓"), highlight(name), info.Path)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [vault]",
		Short: "List vaults, or the secrets of one vault",
		Args:  userArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				names, err := a.svc.Vaults()
				if err != nil {
					return err
				}
				if len(names) == 0 {
					fmt.Fprintln(a.errOut, muted("no vaults in "+a.cfg.VaultDir))
					return nil
				}
				for _, name := range names {
					fmt.Fprintln(a.out, name)
				}
				return nil
			}

			if err := a.unlock(cmd.Context(), args[0]); err != nil {
				return err
			}
			secrets, err := a.svc.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(secrets) == 0 {
				fmt.Fprintln(a.errOut, muted("vault is empty"))
				return nil
			}
			for _, s := range secrets {
				fmt.Fprintf(a.out, "%s\t%s\n", s.Name, muted("updated "+s.UpdatedAt.Local().Format("2006-01-02 15:04")))
			}
			return nil
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <vault>",
		Short: "Show format and key derivation details of a vault",
		Args:  userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.unlock(cmd.Context(), args[0]); err != nil {
				return err
			}
			info, err := a.svc.Info(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "name:        %s\n", info.Name)
			fmt.Fprintf(a.out, "path:        %s\n", info.Path)
			fmt.Fprintf(a.out, "version:     %s\n", info.Version)
			fmt.Fprintf(a.out, "kdf:         argon2id m=%dKiB t=%d p=%d\n", info.KDF.MemoryKiB, info.KDF.Iterations, info.KDF.Parallelism)
			fmt.Fprintf(a.out, "secrets:     %d\n", info.SecretCount)
			fmt.Fprintf(a.out, "file size:   %d bytes\n", info.FileSize)
			return nil
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <vault>",
		Short: "Check that a vault decrypts and its database is intact",
		Args:  userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.unlock(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s Vault %s is intact\n", successMark("✓"), highlight(args[0]))
			return nil
		},
	}
}

func newDestroyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <vault>",
		Short: "Delete a vault file permanently",
		Args:  userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			master, err := a.promptPassword("Master password: ")
			if err != nil {
				return err
			}
			defer krypto.Wipe(master)
			err = a.withSpinner("Verifying "+name+"...", func() error {
				return a.svc.DeleteVault(cmd.Context(), name, master)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s Vault %s deleted\n", successMark("✓"), highlight(name))
			return nil
		},
	}
}
