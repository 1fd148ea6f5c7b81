package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/admin-sidecar/internal/core/domain"
	"github.com/yndnr/admin-sidecar/internal/core/service"
	"github.com/yndnr/admin-sidecar/internal/core/supervisor"
	"github.com/yndnr/admin-sidecar/internal/infra/buildinfo"
	"github.com/yndnr/admin-sidecar/internal/infra/confloader"
	"github.com/yndnr/admin-sidecar/internal/infra/shutdown"
	"github.com/yndnr/admin-sidecar/internal/server/adminserver"
	"github.com/yndnr/admin-sidecar/internal/server/config"
	"github.com/yndnr/admin-sidecar/internal/telemetry/logger"
	"github.com/yndnr/admin-sidecar/internal/telemetry/metric"
)

const (
	appName = "admin-sidecar"

	// shutdownTimeout bounds the shutdown hooks.
	shutdownTimeout = 5 * time.Second
)

// errUsage is returned when the positional arguments are missing.
var errUsage = errors.New("usage: " + appName + " [options] <port> <service-path> [service-args...]")

// newApp creates the CLI application.
func newApp() *cli.App {
	return &cli.App{
		Name:      appName,
		Usage:     "supervise a service and serve an authenticated admin endpoint next to it",
		ArgsUsage: "<port> <service-path> [service-args...]",
		Version:   buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"SIDECAR_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: json, text",
			},
		},
		Commands: []*cli.Command{
			hashPasswordCommand(),
		},
		HideHelpCommand: true,
		Action:          runSidecar,
	}
}

// runSidecar is the main startup sequence.
func runSidecar(c *cli.Context) error {
	if c.NArg() < 2 {
		return errUsage
	}
	port, err := parsePort(c.Args().Get(0))
	if err != nil {
		return err
	}
	servicePath := c.Args().Get(1)
	serviceArgv := c.Args().Slice()[1:]

	clock := domain.ServerClock{StartedAt: time.Now()}

	configFile := c.String("config")
	overrides := flagOverrides(c, port)
	cfg, err := loadConfig(configFile, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("starting "+appName, buildinfo.LogAttrs()...)
	log.Debug("effective configuration",
		"file", configFile,
		"config", config.Sanitize(cfg))

	auth, err := service.NewAuthService(service.AuthServiceConfig{
		Secret:         []byte(cfg.Auth.Secret),
		Username:       cfg.Auth.Username,
		Password:       cfg.Auth.Password,
		PasswordHash:   cfg.Auth.PasswordHash,
		Issuer:         cfg.Auth.Issuer,
		TokenTTL:       cfg.Auth.TokenTTL,
		IssueRateLimit: cfg.Auth.IssueRateLimit,
	})
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}

	sup := supervisor.New(supervisor.Config{Logger: log})
	proc, err := sup.Launch(servicePath, serviceArgv)
	if err != nil {
		return fmt.Errorf("launch monitored service: %w", err)
	}
	rt := domain.NewRuntime(*proc, clock)
	go reportServiceExit(c.Context, sup, proc.PID, log)

	collector, err := metric.NewProcessCollector(rt, metric.WithLogger(log))
	if err != nil {
		return fmt.Errorf("init metrics collector: %w", err)
	}
	registry := metric.NewRegistry(collector)

	srv := adminserver.New(&adminserver.Config{
		MaxRequestBytes:    cfg.Server.MaxRequestBytes,
		Gated:              cfg.Auth.Gated,
		MetricsContentType: metric.ContentType,
	}, auth, registry, log)

	if err := srv.Listen(net.JoinHostPort("", strconv.Itoa(cfg.Server.Port))); err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.Server.Port, err)
	}

	ctx, cancel := context.WithCancelCause(c.Context)
	defer cancel(nil)

	shutdownHandler := shutdown.NewHandler(shutdownTimeout, shutdown.WithLogger(log))

	if configFile != "" {
		watcher, err := watchConfig(configFile, overrides, log)
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown(func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	go func() {
		if err := srv.Serve(ctx); err != nil {
			cancel(fmt.Errorf("serve: %w", err))
		}
	}()

	sig, err := shutdownHandler.Wait(ctx)
	if err != nil {
		log.Warn("shutdown hooks failed", "error", err)
	}
	if sig == nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
	}

	log.Info(appName+" stopped", "service_pid", proc.PID)
	return nil
}

// exitReporter is the part of the supervisor runSidecar watches.
type exitReporter interface {
	Done() <-chan struct{}
	ExitCode() int
}

// reportServiceExit logs the exit code once the monitored service is gone.
// The sidecar keeps serving the last recorded runtime afterwards.
func reportServiceExit(ctx context.Context, sup exitReporter, pid int, log *slog.Logger) {
	select {
	case <-sup.Done():
		log.Warn("monitored service is gone, not relaunching", "service_pid", pid, "exit_code", sup.ExitCode())
	case <-ctx.Done():
	}
}

// parsePort parses a decimal TCP port in the range 1-65535. Signs,
// whitespace and trailing garbage are rejected.
func parsePort(s string) (int, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 {
		return 0, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("invalid port %q", s))
	}
	return int(n), nil
}

// flagOverrides collects the values given on the command line, which take
// precedence over every other configuration source.
func flagOverrides(c *cli.Context, port int) map[string]any {
	overrides := map[string]any{
		"server.port": port,
	}
	if c.IsSet("log-level") {
		overrides["log.level"] = c.String("log-level")
	}
	if c.IsSet("log-format") {
		overrides["log.format"] = c.String("log-format")
	}
	return overrides
}

// newLoader returns a loader with the sidecar's unprefixed env bindings.
func newLoader(configFile string) *confloader.Loader {
	return confloader.NewLoader(
		confloader.WithConfigFile(configFile),
		confloader.WithEnvBinding("JWT_SECRET", "auth.secret"),
		confloader.WithEnvBinding("AUTH_USERNAME", "auth.username"),
		confloader.WithEnvBinding("AUTH_PASSWORD", "auth.password"),
		confloader.WithEnvBinding("AUTH_PASSWORD_HASH", "auth.password_hash"),
	)
}

// loadConfig merges defaults, file, environment and flag overrides, in
// increasing priority, and validates the result.
func loadConfig(configFile string, overrides map[string]any) (*config.SidecarConfig, error) {
	loader := newLoader(configFile)

	if err := loader.LoadMap(config.DefaultMap()); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := loader.LoadMap(overrides); err != nil {
		return nil, err
	}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger creates the process logger and installs it as the default.
func initLogger(cfg *config.SidecarConfig) (*slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// watchConfig re-reads the configuration file when it changes and applies
// the log level. Other settings require a restart.
func watchConfig(configFile string, overrides map[string]any, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(configFile); err != nil {
		_ = watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(path string) {
		reloadLogLevel(configFile, overrides, log)
	})
	watcher.StartAsync()
	return watcher, nil
}

// reloadLogLevel applies log.level from a fresh load of every source.
func reloadLogLevel(configFile string, overrides map[string]any, log *slog.Logger) {
	cfg, err := loadConfig(configFile, overrides)
	if err != nil {
		log.Warn("config reload failed", "file", configFile, "error", err)
		return
	}
	prev := logger.GetLevel()
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		log.Warn("config reload failed", "file", configFile, "error", err)
		return
	}
	if cur := logger.GetLevel(); cur != prev {
		log.Info("log level changed", "from", prev, "to", cur)
	}
}
