package cmd

import (
	"fmt"
	"os"

	"github.com/alantheprice/sitebuilder/pkg/config"
	"github.com/alantheprice/sitebuilder/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	workspaceFlag string
	logLevelFlag  string

	// Set by the root pre-run for every subcommand.
	cfg    *config.Config
	logger *logging.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sitebuilder",
	Short: "AI website builder with a live preview",
	Long: `Sitebuilder edits a website project with a language model and keeps a
rendered preview of a block document in sync with every change.

Available commands:
  serve    - Run the builder API and live preview server
  agent    - Apply one prompt to the workspace from the command line
  preview  - Render a block document to preview/index.html
  files    - List the workspace files the agent sees
  init     - Write a starter config file

Try: sitebuilder agent "add a contact page"`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.LoadFile(cfgFile)
			if err == nil {
				cfg.ApplyEnv(os.Getenv)
			}
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		if workspaceFlag != "" {
			cfg.Workspace = workspaceFlag
		}
		if logLevelFlag != "" {
			cfg.Log.Level = logLevelFlag
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.New(cfg.Log, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.sitebuilder/config.yaml, then ~/.sitebuilder/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "", "project root the agent edits")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}
