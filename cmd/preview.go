package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alantheprice/sitebuilder/pkg/blocks"
	"github.com/alantheprice/sitebuilder/pkg/docstore"
	"github.com/alantheprice/sitebuilder/pkg/preview"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var previewSaved string

var previewCmd = &cobra.Command{
	Use:   "preview [document.json]",
	Short: "Render a block document to preview/index.html",
	Long: `Renders a block document into the workspace preview. The document is a
JSON array of blocks read from the given file, from stdin when the file is
"-", or from a saved document with --saved.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}

		var forest []blocks.Block
		switch {
		case previewSaved != "":
			docs, err := docstore.OpenWorkspace(root, logger.Named("docstore"))
			if err != nil {
				return err
			}
			defer docs.Close()
			if forest, err = docs.Load(cmd.Context(), previewSaved); err != nil {
				return err
			}
		case len(args) == 1:
			if forest, err = readForest(cmd.InOrStdin(), args[0]); err != nil {
				return err
			}
		default:
			return errors.New("a document file or --saved name is required")
		}

		// Validate through the store so ids and types follow the editor's rules.
		store := blocks.NewStore(nil)
		if err := store.ReplaceAll(forest); err != nil {
			return fmt.Errorf("invalid document: %w", err)
		}

		pub := preview.NewPublisher(root, nil, logger.Named("preview"))
		if err := pub.Publish(cmd.Context(), store.Snapshot()); err != nil {
			return err
		}
		logger.Info("preview written", zap.String("path", pub.Path()))
		fmt.Fprintln(cmd.OutOrStdout(), pub.Path())
		return nil
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewSaved, "saved", "", "render a saved document instead of a file")
}

func readForest(stdin io.Reader, path string) ([]blocks.Block, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var forest []blocks.Block
	if err := json.Unmarshal(data, &forest); err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", path, err)
	}
	return forest, nil
}
