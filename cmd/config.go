package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hiring-data-sync/internal/application"
	"hiring-data-sync/internal/config"
	"hiring-data-sync/internal/display"
)

const sampleHeader = `# hiring-data-sync configuration file
# Every value below is the default. DATABASE_URL, S3_BUCKET_NAME, S3_REGION,
# AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY override the matching settings.

`

// sampleConfig renders the default configuration including the display section
func sampleConfig() ([]byte, error) {
	body, err := config.Default().Marshal()
	if err != nil {
		return nil, err
	}
	displaySection, err := yaml.Marshal(map[string]*display.DisplayConfig{"display": display.DefaultDisplayConfig()})
	if err != nil {
		return nil, err
	}

	out := append([]byte(sampleHeader), body...)
	return append(out, displaySection...), nil
}

// createConfigCommand creates the config subcommand for generating sample config
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file that can be used with the --config flag.

Examples:
  # Write the defaults to the default config location
  hiring-data-sync config > ~/.hiring-data-sync.yaml

  # Check a config file for unknown keys and invalid values
  hiring-data-sync config validate my-config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := sampleConfig()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file. With a file argument the file is read
strictly, so misspelled keys are reported. Without one the effective
configuration (config file, environment and flags) is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := newPrinter(cmd)
			if err != nil {
				return err
			}

			var cfg *config.Config
			if len(args) == 1 {
				cfg, err = config.Load(args[0])
			} else {
				cfg, err = buildConfig(cmd)
			}
			if err == nil {
				err = cfg.Finalize()
			}
			if err != nil {
				application.ReportError(printer, nil, err)
				return errReported
			}

			printer.Success("Configuration is valid")
			printer.Info(fmt.Sprintf("Database %s@%s:%d/%s", cfg.Database.Username, cfg.Database.Host,
				cfg.Database.Port, cfg.Database.Database))
			printer.Info(fmt.Sprintf("Snapshots in %s storage, sources in %s storage",
				cfg.Snapshot.Storage.Provider, cfg.Migration.Source.Provider))
			return nil
		},
	})
	return configCmd
}
