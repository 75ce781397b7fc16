package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alantheprice/sitebuilder/pkg/config"
	"github.com/spf13/cobra"
)

var (
	initForce bool
	initModel string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config in the current directory",
	Long: `Creates .sitebuilder/config.yaml in the current working directory with
every setting at its default. The API key is not written; set
OPENROUTER_API_KEY instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(".sitebuilder", "config.yaml")
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		out := config.DefaultConfig()
		out.Workspace = cfg.Workspace
		if initModel != "" {
			out.LLM.Model = initModel
		}
		if err := out.Validate(); err != nil {
			return err
		}
		if err := config.Save(path, out); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config")
	initCmd.Flags().StringVar(&initModel, "model", "", "default model to record")
}
