package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/focusgate/internal/config"
)

var (
	configForce   bool
	configProject bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage focusgate configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GlobalFile()
		switch {
		case configPath != "":
			path = configPath
		case configProject:
			path = config.ProjectFile
		}
		if err := config.WriteDefault(path, configForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.Encode(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().BoolVar(&configProject, "project", false, "write "+config.ProjectFile+" in the current directory")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
