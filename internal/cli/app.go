package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/nerrad567/gatewayctl/internal/device"
	"github.com/nerrad567/gatewayctl/internal/dispatch"
	"github.com/nerrad567/gatewayctl/internal/gateway"
	"github.com/nerrad567/gatewayctl/internal/infrastructure/config"
	"github.com/nerrad567/gatewayctl/internal/infrastructure/logging"
	"github.com/nerrad567/gatewayctl/internal/scene"
)

// app holds the wired core shared by every command.
type app struct {
	cfg          *config.Config
	logger       *logging.Logger
	gateway      *gateway.Client
	directory    *device.Directory
	scheduler    *dispatch.Scheduler
	orchestrator *scene.Orchestrator
	pool         *dispatch.Pool // nil unless dispatch.strategy is pool
}

// newApp loads configuration and wires gateway, directory, dispatcher,
// scheduler and orchestrator.
func newApp(opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}

	logger := logging.New(cfg.Logging, opts.Version)
	logger.Debug("configuration loaded",
		"gateway", cfg.GatewayBaseURL(),
		"mode", cfg.Dispatch.Mode,
		"strategy", cfg.Dispatch.Strategy,
	)

	mode, err := dispatch.ParseMode(cfg.Dispatch.Mode)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid dispatch mode", err)
	}

	gwCfg := gatewayConfig(cfg, opts.Version)
	gw := gateway.New(gwCfg)
	gw.SetLogger(logger.Component("gateway"))

	dir := device.NewDirectory(gw)
	dir.SetLogger(logger.Component("directory"))

	a := &app{
		cfg:       cfg,
		logger:    logger,
		gateway:   gw,
		directory: dir,
	}

	dispatcher, err := a.buildDispatcher(mode, gwCfg)
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "building dispatcher", err)
	}

	a.scheduler = dispatch.NewScheduler(dispatcher)
	a.scheduler.SetLogger(logger.Component("scheduler"))

	a.orchestrator = scene.NewOrchestrator(dir, gw, a.scheduler, dispatchOptions(cfg, mode), logger.Component("scene"))
	a.orchestrator.SetReadConcurrency(cfg.Dispatch.MaxConcurrency)

	return a, nil
}

// Close releases idle gateway connections and pooled transports.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	a.gateway.Close()
}

// buildDispatcher returns the dispatcher selected by dispatch.strategy.
func (a *app) buildDispatcher(mode dispatch.Mode, gwCfg gateway.Config) (dispatch.Dispatcher, error) {
	opts := []dispatch.Option{
		dispatch.WithRequestTimeout(a.cfg.GetRequestTimeout()),
		dispatch.WithLogger(a.logger.Component("dispatch")),
	}

	if a.cfg.Dispatch.Strategy == config.StrategyPool {
		pool, err := dispatch.NewPool(a.cfg.Dispatch.PoolWorkers, func() (dispatch.Sender, error) {
			c := gateway.New(gwCfg)
			c.SetLogger(a.logger.Component("gateway"))
			return c, nil
		}, opts...)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.logger.Debug("using pooled dispatcher", "workers", pool.Size())
		return pool, nil
	}

	c := dispatch.NewConcurrent(a.gateway, concurrencyLimit(a.cfg, mode), opts...)
	a.logger.Debug("using concurrent dispatcher", "limit", c.Limit())
	return c, nil
}

// loadConfig reads the config file. A missing file at the default path falls
// back to built-in defaults plus environment overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}

	var (
		cfg *config.Config
		err error
	)
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) && path == DefaultConfigPath {
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, err
	}

	if opts.Mode != "" {
		cfg.Dispatch.Mode = opts.Mode
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating overrides: %w", err)
	}
	return cfg, nil
}

func gatewayConfig(cfg *config.Config, version string) gateway.Config {
	return gateway.Config{
		BaseURL:            cfg.GatewayBaseURL(),
		Token:              cfg.Gateway.Token,
		InsecureSkipVerify: cfg.Gateway.InsecureSkipVerify,
		Timeout:            cfg.GetGatewayTimeout(),
		UserAgent:          "gatewayctl/" + version,
	}
}

// concurrencyLimit picks the in-flight cap for the active mode.
func concurrencyLimit(cfg *config.Config, mode dispatch.Mode) int {
	if mode == dispatch.ModeFireAndForget {
		return cfg.Dispatch.FireAndForgetConcurrency
	}
	return cfg.Dispatch.MaxConcurrency
}

// dispatchOptions maps configuration onto scheduler options. max_retries and
// reconcile_retries are total attempts per command.
func dispatchOptions(cfg *config.Config, mode dispatch.Mode) dispatch.Options {
	return dispatch.Options{
		Mode: mode,
		Retry: dispatch.RetryPolicy{
			MaxAttempts: cfg.Dispatch.MaxRetries,
			Delay:       cfg.GetRetryDelay(),
		},
		BatchSize:  cfg.Batch.Size,
		BatchDelay: cfg.GetBatchDelay(),
		Reconcile:  cfg.Dispatch.Reconcile,
		ReconcileRetry: dispatch.RetryPolicy{
			MaxAttempts: cfg.Dispatch.ReconcileRetries,
			Delay:       cfg.GetRetryDelay(),
		},
	}
}
