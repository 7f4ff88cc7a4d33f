package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/muvahhid/molayeri-sub002/config"
	"github.com/muvahhid/molayeri-sub002/pkg/access"
	"github.com/muvahhid/molayeri-sub002/pkg/api"
	"github.com/muvahhid/molayeri-sub002/pkg/photo"
	"github.com/muvahhid/molayeri-sub002/pkg/storage"
	"github.com/muvahhid/molayeri-sub002/util/log"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the merchant panel API",
		Long: `Starts the HTTP API used by the onboarding wizard and the merchant panel.

Photos are normalized on upload, kept in a per-listing draft batch and
published to the configured object store on submit.`,
		Example: `  # Start on the configured address
  molayeri serve

  # Start on a custom address
  molayeri serve --addr :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}

			dataDir := filepath.Dir(cfg.Storage.RecordsFile)
			ok, err := acquireLock(dataDir)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("another %s server is already using %s", config.AppName, dataDir)
			}
			defer releaseLock()

			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (overrides server.addr)")

	return cmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	n, err := newNormalizer(cfg)
	if err != nil {
		return err
	}

	pub, objects, err := openPublisher(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer pub.Store().Close()

	previews, err := photo.NewPreviewStore(cfg.Server.PreviewDir, "/previews")
	if err != nil {
		return err
	}
	defer previews.Close()

	roles, err := access.NewStaticRoles(cfg.Access.Users)
	if err != nil {
		return fmt.Errorf("access.users: %w", err)
	}

	srv := api.NewServer(api.Options{
		Addr:           cfg.Server.Addr,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		UploadRate:     cfg.Server.UploadRate,
		UploadBurst:    cfg.Server.UploadBurst,
		MaxConns:       cfg.Server.MaxConns,
		MaxCount:       cfg.Batch.MaxCount,
		MinCount:       cfg.Batch.MinCount,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, n, pub, previews, roles)

	// Published objects are served by this process when they live on disk.
	if local, ok := objects.(*storage.LocalStore); ok && strings.HasPrefix(cfg.Storage.PublicBaseURL, "/") {
		srv.ServeDir(cfg.Storage.PublicBaseURL, local.Root())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		// Give server 5 seconds to shut down gracefully
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		log.Println("Server stopped")
		return nil
	})

	return g.Wait()
}
