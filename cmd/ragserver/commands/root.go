// Package commands defines all Cobra CLI commands for the ragserver binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oliverwm/ragserver/internal/audit"
	"github.com/oliverwm/ragserver/internal/config"
	"github.com/oliverwm/ragserver/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragserver",
		Short: "ragserver — chat with your documents using retrieval-augmented generation",
		Long: `ragserver answers questions about your own documents.

It loads PDF and text files from an S3-compatible bucket into a vector store,
then serves a conversational API that retrieves the most relevant passages
and feeds them to an LLM together with the session's chat history.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.ragserver/config.yaml).
See 'ragserver --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A local .env is a convenience for development; absence is fine.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragserver/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewLoadCmd(),
		NewSearchCmd(),
		NewAskCmd(),
		NewVersionCmd(),
	)

	return root
}
