package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ao3extract/internal/config"
)

var errConfigExists = errors.New("configuration file already exists")

func newInitCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := ctx.configPath
			if path == "" {
				path = defaultConfigPath
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: %s (use --force to overwrite)", errConfigExists, path)
			}

			cfg := config.DefaultConfig()
			if err := cfg.SaveConfig(path); err != nil {
				return err
			}

			fmt.Printf("📝 Wrote %s\n", path)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration file")

	return cmd
}
