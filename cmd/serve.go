package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alantheprice/sitebuilder/pkg/docstore"
	"github.com/alantheprice/sitebuilder/pkg/events"
	"github.com/alantheprice/sitebuilder/pkg/preview"
	"github.com/alantheprice/sitebuilder/pkg/webui"
	"github.com/alantheprice/sitebuilder/pkg/workspace"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr     string
	serveDocument string
	serveAutosave bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the builder API and live preview server",
	Long: `Starts the HTTP server that exposes the AI builder endpoints, the block
editing API and the live preview at /preview/. The preview is re-rendered on
every document change and pushed to connected viewers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		if serveDocument != "" {
			cfg.Server.Document = serveDocument
		}
		if !webui.CheckPortAvailable(cfg.Server.Addr) {
			return fmt.Errorf("address %s is already in use", cfg.Server.Addr)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveDocument, "document", "", "saved document to open at startup (overrides server.document)")
	serveCmd.Flags().BoolVar(&serveAutosave, "autosave", true, "save the open document on shutdown")
}

func runServe(ctx context.Context) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	log := logger.With(zapRoot(root))

	bus := events.NewEventBus()
	locker := workspace.NewLocker()
	publisher := preview.NewPublisher(root, bus, log.Named("preview"))

	docs, err := docstore.OpenWorkspace(root, log.Named("docstore"))
	if err != nil {
		return err
	}
	defer docs.Close()

	server := webui.NewServer(webui.Options{
		Addr:            cfg.Server.Addr,
		Root:            root,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Agent:           newAgent(bus, locker),
		Publisher:       publisher,
		Docs:            docs,
		Events:          bus,
		Logger:          log.Named("webui"),
	})

	if err := openDocument(ctx, docs, server, publisher, cfg.Server.Document); err != nil {
		return err
	}

	watcher, err := preview.NewWatcher(publisher, cfg.Server.PreviewDebounce, log.Named("watcher"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })

	err = g.Wait()

	if serveAutosave {
		// The serve context is already done here.
		if serr := docs.Save(context.Background(), cfg.Server.Document, server.Store().Snapshot()); serr != nil {
			log.Error("failed to save document on shutdown", zap.Error(serr))
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openDocument loads name into the server's store, or publishes the empty
// document when nothing has been saved under that name yet.
func openDocument(ctx context.Context, docs *docstore.Store, server *webui.Server, publisher *preview.Publisher, name string) error {
	forest, err := docs.Load(ctx, name)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return publisher.Publish(ctx, server.Store().Snapshot())
	case err != nil:
		return err
	}
	logger.Info("opened document", zap.String("name", name))
	return server.Store().ReplaceAll(forest)
}
