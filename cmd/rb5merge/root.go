package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/radar-merge-service/internal/adapter/archive"
	"github.com/couchcryptid/radar-merge-service/internal/adapter/bridge"
	"github.com/couchcryptid/radar-merge-service/internal/config"
	"github.com/couchcryptid/radar-merge-service/internal/observability"
	"github.com/couchcryptid/radar-merge-service/internal/pipeline"
)

// Metrics register with the default registry, which allows one set per process.
var processMetrics = sync.OnceValue(observability.NewMetrics)

type globalFlags struct {
	bridge        string
	bridgeTimeout time.Duration
	logLevel      string
	logFormat     string
}

// app lazily resolves configuration and collaborators shared by subcommands.
type app struct {
	flags *globalFlags

	once    sync.Once
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	err     error
}

func newApp(flags *globalFlags) *app {
	return &app{flags: flags}
}

func (a *app) init() error {
	a.once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			a.err = err
			return
		}
		if a.flags.bridge != "" {
			cfg.BridgeBinary = a.flags.bridge
		}
		if a.flags.bridgeTimeout > 0 {
			cfg.BridgeTimeout = a.flags.bridgeTimeout
		}
		if a.flags.logLevel != "" {
			cfg.LogLevel = a.flags.logLevel
		}
		if a.flags.logFormat != "" {
			cfg.LogFormat = a.flags.logFormat
		}
		a.cfg = cfg
		a.logger = observability.NewLogger(cfg)
		a.metrics = processMetrics()
	})
	return a.err
}

func (a *app) bridgeClient() *bridge.Client {
	return bridge.NewClient(
		bridge.WithBinary(a.cfg.BridgeBinary),
		bridge.WithTimeout(a.cfg.BridgeTimeout),
		bridge.WithLogger(a.logger),
	)
}

func (a *app) merger() *pipeline.Merger {
	client := a.bridgeClient()
	return pipeline.NewMerger(client, archive.NewOpener(), client, a.logger, a.metrics)
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	a := newApp(flags)

	rootCmd := &cobra.Command{
		Use:           "rb5merge",
		Short:         "Merge Rainbow 5 radar fragments into ODIM_H5 products",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.bridge, "bridge", "", "Bridge executable used to decode and save (overrides BRIDGE_BINARY)")
	pf.DurationVar(&flags.bridgeTimeout, "bridge-timeout", 0, "Timeout for each bridge call (overrides BRIDGE_TIMEOUT)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: json or text (overrides LOG_FORMAT)")

	rootCmd.AddCommand(newSingleCommand(a))
	rootCmd.AddCommand(newCombineCommand(a))
	rootCmd.AddCommand(newTarballCommand(a))
	rootCmd.AddCommand(newCycleCommand(a))
	rootCmd.AddCommand(newServeCommand(a))

	return rootCmd
}
