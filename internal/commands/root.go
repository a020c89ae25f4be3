package commands

import (
	"github.com/spf13/cobra"
)

// Command builds the root command
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "nuze",
		Short:         "Publish, subscribe and query from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.sessionName, "session", "s", "default", "Session name from the configuration")
	flags.StringVar(&a.inputFormat, "input-format", "lines", "Input items: lines or json")
	flags.StringVar(&a.format, "format", "auto", "Output format: auto, json, yaml or table")
	flags.StringVar(&a.configPath, "config", "", "Configuration file path")

	root.AddCommand(
		a.newPubCommand(),
		a.newPutCommand(),
		a.newDeleteCommand(),
		a.newSubCommand(),
		a.newQuerierCommand(),
		a.newGetCommand(),
		a.newQueryableCommand(),
		a.newLivelinessCommand(),
		a.newScoutCommand(),
		a.newZIDCommand(),
		a.newConfigCommand(),
		a.newLogPathCommand(),
		a.newDecodeCommand(),
	)
	return root
}
