package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensesh/sesh/core/relay"
)

var (
	serveAddr        string
	serveAllowOrigin bool
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Relay provider streams to a UI over a websocket",
	Long: `Start an HTTP server that answers chat requests sent over a websocket on /ws
and lists the configured providers on /providers.

Every request sent on the socket is answered with a series of JSON events
tagged with the same stream_id and closed by a single "done" event.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8787", "Listen address")
	serveCmd.Flags().BoolVar(&serveAllowOrigin, "allow-any-origin", false, "Accept websocket connections from any origin")
}

func runServe(cmd *cobra.Command, args []string) error {
	providers, err := loadRegistry()
	if err != nil {
		return err
	}

	options := []relay.Option{
		relay.WithLogger(logger),
		relay.WithMiddleware(callMiddleware()...),
	}
	if serveAllowOrigin {
		options = append(options, relay.WithCheckOrigin(func(*http.Request) bool { return true }))
	}

	server := &http.Server{
		Addr:              serveAddr,
		Handler:           relay.NewMux(relay.NewHandler(providers, options...), providers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", serveAddr, "providers", providers.Names())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("relay shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
