package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/swissMack/pve1-sub007/httpserver"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves POST/GET /api/analytics/query, GET /api/carriers/{mccmnc},
GET /healthz and GET /metrics until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cfg.RequireAnalytics(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.serve(ctx)
		},
	}
}

// serve runs the server until ctx is done, then shuts it down gracefully.
func (a *app) serve(ctx context.Context) error {
	tlsCfg := a.tlsConfig()

	server, err := httpserver.NewServer(a.cfg.Server.Addr, a.handler(), tlsCfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			errCh <- server.ListenAndServeTLS("", "")
			return
		}
		errCh <- server.ListenAndServe()
	}()

	a.logger.WithFields(logrus.Fields{
		"addr":          a.cfg.Server.Addr,
		"tls":           tlsCfg != nil,
		"oauth2":        a.credentials.Enabled(),
		"analytics_url": a.cfg.Analytics.BaseURL,
		"carrier_url":   a.cfg.Carrier.LookupURL,
		"redis":         a.redis != nil,
	}).Info("analyticsproxy listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
