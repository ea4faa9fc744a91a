// Package commands implements the sesh command tree.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensesh/sesh/core/middleware"
	"github.com/opensesh/sesh/core/registry"
	"github.com/opensesh/sesh/providers/ai"
	obsslog "github.com/opensesh/sesh/providers/observability/slog"
)

var (
	configPath string
	logLevel   string
	callLog    string

	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

var rootCmd = &cobra.Command{
	Use:   "sesh",
	Short: "Chat with Anthropic and OpenAI models from one interface",
	Long: `sesh sends conversations to Anthropic or OpenAI and prints the answers,
streamed or in one piece, with both vendors normalized to one event shape.

Providers are configured from ANTHROPIC_API_KEY and OPENAI_API_KEY (a .env
file in the working directory is loaded), or from a YAML file given with
--config.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configured, err := newLogger(cmd.ErrOrStderr(), logLevel)
		if err != nil {
			return err
		}
		logger = configured
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SESH_CONFIG"), "Provider configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from SESH_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&callLog, "log-calls", "minimal", "Provider call logging: minimal, standard, verbose")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger writes text logs to w. An empty level defers to the
// environment.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	parsed := obsslog.GetLogLevelFromEnv()
	if level != "" {
		var err error
		if parsed, err = obsslog.ParseLogLevel(level); err != nil {
			return nil, err
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parsed})), nil
}

// loadRegistry builds the providers from --config, or from the environment
// when no file is given.
func loadRegistry() (*registry.Registry, error) {
	if configPath == "" {
		return registry.FromEnv(logger), nil
	}
	providers, err := registry.FromFile(configPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded provider config", "path", configPath, "providers", providers.Names())
	return providers, nil
}

// callMiddleware is the chain every command wraps providers with: one span
// per call, then call logging.
func callMiddleware() []middleware.Config {
	return []middleware.Config{
		middleware.NewObservabilityMiddleware(obsslog.New(logger)),
		middleware.NewLoggingMiddleware(logger, middleware.ParseLogLevel(callLog)),
	}
}

func resolveProvider(providers *registry.Registry, name string) (ai.Provider, error) {
	provider, err := providers.Resolve(name)
	if err != nil {
		if providers.Len() == 0 {
			return nil, fmt.Errorf("%w (set ANTHROPIC_API_KEY or OPENAI_API_KEY, or pass --config)", err)
		}
		return nil, err
	}
	return provider, nil
}
