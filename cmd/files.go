package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/alantheprice/sitebuilder/pkg/workspace"
	"github.com/spf13/cobra"
)

var filesAll bool

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the workspace files the agent sees",
	Long: `Lists workspace files with their sizes. Paths matched by .gitignore and the
builder's own state directories are left out unless --all is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}

		list := workspace.ListFiltered
		if filesAll {
			list = workspace.List
		}
		entries, err := list(root)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		var total int64
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%d\n", e.Path, e.Size)
			total += e.Size
		}
		tw.Flush()
		fmt.Fprintf(cmd.OutOrStdout(), "%d files, %d bytes\n", len(entries), total)
		return nil
	},
}

func init() {
	filesCmd.Flags().BoolVarP(&filesAll, "all", "a", false, "include ignored files")
}
