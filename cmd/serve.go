package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/karla/internal/api"
)

// shutdownTimeout bounds how long in-flight requests may run after a signal.
const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the job API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if port, _ := cmd.Flags().GetInt("port"); port != 0 {
				a.cfg.Server.Port = port
			}
			if err := a.cfg.Validate("serve"); err != nil {
				return err
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			srv := &http.Server{
				Addr: fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler: api.NewServer(st, api.Options{
					RateLimit:      a.cfg.Server.RateLimit,
					RateBurst:      a.cfg.Server.RateBurst,
					AllowedOrigins: a.cfg.Server.AllowedOrigins,
				}).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return eris.Wrap(err, "server listen")
			}

			zap.L().Info("starting server",
				zap.Int("port", a.cfg.Server.Port),
				zap.String("store", a.cfg.Store.Driver),
			)
			return serveUntilDone(ctx, srv, ln)
		},
	}

	cmd.Flags().Int("port", 0, "server port (default from config)")
	return cmd
}

// serveUntilDone serves on ln until ctx is done, then shuts srv down and
// returns only after in-flight requests have drained or shutdownTimeout
// elapsed. Callers may release resources used by handlers once it returns.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown incomplete", zap.Error(err))
		}
	}()

	err := srv.Serve(ln)
	cancel()
	<-shutdownDone

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server serve")
	}
	return nil
}
