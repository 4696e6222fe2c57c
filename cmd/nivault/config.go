package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/Hussein-Mazeh/nivault/store"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write the settings file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings as TOML",
		Args:  userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toml.NewEncoder(a.out).Encode(a.cfg)
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective settings to the config file",
		Args:  userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.configPath()
			if err != nil {
				return err
			}
			exists, err := store.Exists(path)
			if err != nil {
				return err
			}
			if exists && !force {
				return userError{msg: fmt.Sprintf("%s already exists (use --force to overwrite)", path)}
			}
			if err := a.cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s Settings written to %s\n", successMark("✓"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	cmd.AddCommand(initCmd)
	return cmd
}
