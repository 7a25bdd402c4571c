package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nyota-systems/orbitkernel/kernel"
)

var (
	cfgFile  string
	logLevel string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "orbitctl",
		Short: "Drive the orbit kernel scheduler core with a synthetic workload",
		Long: `orbitctl boots the cooperative, tick-driven RTOS scheduler core and wires a
small synthetic workload against it — producer/consumer tasks over a
queue, a priority-inheritance demonstration, a periodic task, and an
event-group rendezvous — to exercise every primitive without standing
up the full satellite telemetry demo.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML tunables file (default: built-in defaults)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(newRunCmd())
	return root
}

func loadConfigAndLogger() (kernel.Config, *zap.SugaredLogger, error) {
	cfg, err := kernel.LoadConfig(cfgFile)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, kernel.NewLogger(parseLevel(logLevel)), nil
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
