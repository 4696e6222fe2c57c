package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "nivault",
		Short: "Local encrypted secret vaults",
		Long: `nivault keeps named secrets in password-protected vault files.

Each vault is a single file in the vault directory. Every change is written
atomically and read back before it is reported as saved.`,
		Version:       cliVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return userError{msg: fmt.Sprintf("%v\nusage: %s", err, cmd.UseLine())}
	})
	root.SetIn(a.stdin)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().StringVarP(&a.dirFlag, "dir", "d", "", "vault directory (overrides config and $NIVAULT_DIR)")
	root.PersistentFlags().StringVarP(&a.configFlag, "config", "c", "", "path to config.toml")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newCreateCmd(a),
		newAddCmd(a),
		newGetCmd(a),
		newUpdateCmd(a),
		newRemoveCmd(a),
		newListCmd(a),
		newInfoCmd(a),
		newVerifyCmd(a),
		newDestroyCmd(a),
		newConfigCmd(a),
	)
	return root
}

// userArgs reports positional argument mistakes as user errors.
func userArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return userError{msg: fmt.Sprintf("%v\nusage: %s", err, cmd.UseLine())}
		}
		return nil
	}
}
