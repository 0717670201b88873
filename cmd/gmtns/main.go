// Command gmtns exercises the GMT natural seeing reconstruction chain on
// synthetic calibrations.
package main

import (
	"fmt"
	"os"

	gmtns "github.com/rodrigo-romano/gmt-ns-im"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type app struct {
	configPath string
	verbose    bool
	seed       int64

	sys    gmtns.System
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	root := &cobra.Command{
		Use:   "gmtns",
		Short: "GMT natural seeing reconstruction chain",
		Long: `gmtns builds merged segment reconstructors out of synthetic calibrations
and runs them against a pseudo open-loop sensor.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if a.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger

			a.sys = gmtns.DefaultSystem()
			if a.configPath != "" {
				if a.sys, err = gmtns.LoadSystem(a.configPath); err != nil {
					return err
				}
				a.logger.Debug("configuration loaded", zap.String("path", a.configPath))
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML system configuration (default: built-in GMT configuration)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().Int64Var(&a.seed, "seed", 1, "Seed of the synthetic calibrations")

	root.AddCommand(newSelftestCmd(a))
	root.AddCommand(newSpectrumCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
