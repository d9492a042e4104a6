package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"updrive/internal/config"
	"updrive/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		outputName string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "updrive",
		Short:         "UpDrive is a personal file store with deduplication and quotas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			if outputName != "" {
				formatter, err := format.ForName(outputName)
				if err != nil {
					return err
				}
				outputFormatter = formatter
				jsonOutput = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVarP(&outputName, "output", "o", "", "structured output format (json or yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newBridgeCmd(cfg),
		newMigrateCmd(cfg, &jsonOutput),
		newGCCmd(cfg, &jsonOutput),
		newInfoCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
		newRegisterCmd(cfg, &jsonOutput),
		newLoginCmd(cfg, &jsonOutput),
		newWhoamiCmd(cfg, &jsonOutput),
		newUsageCmd(cfg, &jsonOutput),
		newListCmd(cfg, &jsonOutput),
		newPutCmd(cfg, &jsonOutput),
		newGetCmd(cfg, &jsonOutput),
		newRemoveCmd(cfg),
		newMoveCmd(cfg, &jsonOutput),
		newRenameCmd(cfg, &jsonOutput),
		newMkdirCmd(cfg, &jsonOutput),
		newFoldersCmd(cfg, &jsonOutput),
		newDriveCmd(cfg, &jsonOutput),
	)

	return cmd
}
