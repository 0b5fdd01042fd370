package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Guliveer/vitalis/metricd/internal/collector"
	"github.com/Guliveer/vitalis/metricd/internal/config"
	"github.com/Guliveer/vitalis/metricd/internal/metric"
	"github.com/Guliveer/vitalis/metricd/internal/scheduler"
	"github.com/Guliveer/vitalis/metricd/internal/service"
	"github.com/Guliveer/vitalis/metricd/internal/sink"
	"github.com/Guliveer/vitalis/metricd/internal/telemetry"
)

var runCommand = cli.Command{
	Name:   "run",
	Usage:  "run the configured collectors on their intervals",
	Action: runAction,
}

var collectCommand = cli.Command{
	Name:      "collect",
	Usage:     "run one pass of the named collectors and print the metrics as JSON",
	ArgsUsage: "NAME...",
	Action:    collectAction,
}

var listCommand = cli.Command{
	Name:   "list",
	Usage:  "list collector kinds and their default options",
	Action: listAction,
}

var initCommand = cli.Command{
	Name:  "init",
	Usage: "write the default agent configuration",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "where to write the configuration",
			Value:   "agent.yaml",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "overwrite an existing file",
		},
	},
	Action: initAction,
}

// loadConfig resolves the config path from --config or the standard
// search paths, then loads and validates it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		path = config.Locate()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting metricd", zap.String("version", version))

	env := collector.Env{
		Logger: logger,
		Sink:   sink.NewWriter(os.Stdout, logger),
	}
	registry, err := buildRegistry(cfg, cfg.CollectorNames(), env, logger)
	if err != nil {
		logger.Fatal("Failed to build collectors", zap.Error(err))
	}

	if service.IsWindowsService() {
		logger.Info("Running as Windows service")
		svc := service.New(logger, func(ctx context.Context) {
			runAgent(ctx, cfg, registry, logger)
		})
		if err := svc.Run(); err != nil {
			logger.Fatal("Service failed", zap.Error(err))
		}
		return nil
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	// Handle OS signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received signal, shutting down",
				zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	runAgent(ctx, cfg, registry, logger)
	logger.Info("Agent stopped")
	return nil
}

// runAgent starts the optional telemetry server and the scheduler. It
// blocks until ctx is cancelled.
func runAgent(ctx context.Context, cfg *config.Config, registry *collector.Registry, logger *zap.Logger) {
	metrics := telemetry.New()
	if cfg.Telemetry.Listen != "" {
		go func() {
			if err := telemetry.Serve(ctx, cfg.Telemetry.Listen, metrics, logger); err != nil {
				logger.Error("Telemetry server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("Agent running", zap.Int("collectors", len(registry.Collectors())))
	scheduler.New(registry, metrics, logger).Start(ctx)
}

func collectAction(c *cli.Context) error {
	names := c.Args().Slice()
	if len(names) == 0 {
		return cli.Exit("collect needs at least one collector name", 2)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	registry, err := buildRegistry(cfg, names, collector.Env{Logger: logger}, logger)
	if err != nil {
		return err
	}

	results := scheduler.New(registry, nil, logger).RunOnce(c.Context)

	all := make([]metric.Metric, 0)
	aborted := 0
	for _, name := range names {
		ms, ok := results[name]
		if !ok {
			continue
		}
		if ms == nil {
			aborted++
			continue
		}
		all = append(all, ms...)
	}

	data, err := metric.EncodeBatch(all)
	if err != nil {
		return errors.Wrap(err, "encoding metrics")
	}
	fmt.Fprintln(c.App.Writer, string(data))

	if aborted > 0 {
		return cli.Exit(fmt.Sprintf("%d collector pass(es) aborted", aborted), 1)
	}
	return nil
}

func listAction(c *cli.Context) error {
	out := make(map[string]map[string]interface{})
	for _, kind := range collector.Kinds() {
		opts, _ := collector.DefaultConfigFor(kind)
		out[kind] = opts.Map()
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return errors.Wrap(err, "marshaling defaults")
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func initAction(c *cli.Context) error {
	path := c.String("output")
	if !c.Bool("force") {
		if _, err := os.Stat(path); err == nil {
			return cli.Exit(fmt.Sprintf("%s already exists, use --force to overwrite", path), 1)
		}
	}
	if err := config.WriteConfig(config.DefaultConfig(), path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}

// buildRegistry builds and registers the named collectors. Names missing
// from the configuration are built with their kind's defaults.
func buildRegistry(cfg *config.Config, names []string, env collector.Env, logger *zap.Logger) (*collector.Registry, error) {
	registry := collector.NewRegistry(logger)
	if env.DefaultDimensions == nil {
		env.DefaultDimensions = cfg.DefaultDimensions
	}
	for _, name := range names {
		c, err := collector.Build(name, cfg.CollectorOptions(name), env)
		if err != nil {
			return nil, err
		}
		registry.Register(c)
	}
	return registry, nil
}
