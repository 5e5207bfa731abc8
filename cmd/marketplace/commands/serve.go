package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the marketplace views over HTTP and websocket",
		Long: `Serve the catalog, product, profile and session views as JSON, with a
live websocket feed at /ws and Prometheus metrics at /metrics.

The server runs until interrupted (Ctrl+C) or it receives SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				appCtx.Config().HTTP.ListenAddr = listen
			}
			srv, err := appCtx.NewHTTPServer()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := appCtx.Start(ctx); err != nil {
				return err
			}
			appCtx.Catalog.Load()
			cmd.Printf("listening on %s\n", srv.Addr())

			<-ctx.Done()
			appCtx.Logger().Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return appCtx.Stop(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides http.listen_addr)")
	return cmd
}
