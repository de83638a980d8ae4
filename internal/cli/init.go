// Package cli provides the bootstrap shared by cmd/envelopes,
// cmd/envelopes-worker and cmd/envelopes-cli.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"envelopes/internal/backend"
	"envelopes/internal/config"
	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads and validates the configuration.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the process logger for level and installs it as the
// slog default. An unparsable level falls back to info.
func SetupLogger(level, component string) *log.Logger {
	lc := log.DefaultConfig()
	if lvl, err := log.ParseLevel(level); err == nil {
		lc.Level = lvl
	}
	lc.Component = component
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// Bootstrap loads .env and configuration and sets up logging. It exits the
// process when the configuration is invalid.
func Bootstrap(component string) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg, SetupLogger(cfg.LogLevel, component)
}

// OpenBackend builds the backend components for role.
func OpenBackend(ctx context.Context, cfg *config.Config, role backend.Role, logger *log.Logger) (*backend.Result, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger).CreateBackend(ctx, bcfg, role)
}

// NewChallengeService wires a service over res. The AMQP client, when
// present, takes over remote propagation from the debounced push.
func NewChallengeService(cfg *config.Config, res *backend.Result, logger *log.Logger, extra ...services.Option) *services.ChallengeService {
	opts := []services.Option{
		services.WithEvaluator(core.NewEvaluator(nil, cfg.Location())),
		services.WithDebounce(cfg.SyncDebounce),
		services.WithLogger(logger),
	}
	if res.Remote != nil {
		opts = append(opts, services.WithRemote(res.Remote))
	}
	if res.AMQP != nil {
		opts = append(opts, services.WithPublisher(res.AMQP))
	}
	return services.NewChallengeService(res.Local, append(opts, extra...)...)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
