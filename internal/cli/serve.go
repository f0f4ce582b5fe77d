package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/cellflow/cellflow/internal/httpapi"
)

// shutdownGrace is how long in-flight requests get to finish.
const shutdownGrace = 10 * time.Second

// NewServeCommand creates the serve command, which runs the HTTP API
// until interrupted.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !opts.Verbose {
				gin.SetMode(gin.ReleaseMode)
			}
			server := &http.Server{
				Addr:    a.cfg.Listen,
				Handler: httpapi.NewServer(a.engine, httpapi.WithLogger(a.logger)).Router(),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.ListenAndServe()
			}()
			a.logger.Info("listening",
				"addr", a.cfg.Listen,
				"database", a.cfg.Database,
				"base_url", a.cfg.BaseURL)

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return WrapExitError(ExitCommandError, "serve", err)
				}
				return nil
			case <-ctx.Done():
				a.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return WrapExitError(ExitCommandError, "shutdown", err)
				}
				return nil
			}
		},
	}
}
