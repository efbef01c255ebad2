package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/izavyalov-dev/diffbase/internal/observability"
	"github.com/izavyalov-dev/diffbase/resolver"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve diff base resolution over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, os.Environ(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			var sink resolver.Sink
			if len(a.sinks) > 0 {
				sink = a.sinks
			}
			handler := resolver.NewHTTPHandler(a.service, sink, a.registry, observability.NewLogger("resolver.http"))
			server := &http.Server{
				Addr:              listen,
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
			}

			errs := make(chan error, 1)
			go func() {
				errs <- server.ListenAndServe()
			}()
			a.logger.Info("server started", "event", "server_started", "addr", listen)

			select {
			case err := <-errs:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.logger.Info("server stopping", "event", "server_stopping")
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8080", "Listen address")
	return cmd
}
