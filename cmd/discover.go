// File: cmd/discover.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/faultline-sec/faultline/internal/config"
	"github.com/faultline-sec/faultline/internal/factstore"
	"github.com/faultline-sec/faultline/internal/observability"
	"github.com/faultline-sec/faultline/internal/reporting"
	"github.com/faultline-sec/faultline/internal/taint"
)

// newDiscoverCmd creates and configures the `discover` command.
func newDiscoverCmd() *cobra.Command {
	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Runs taint discovery against the fact database and writes the results",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys so command-line
			// flags correctly override values from the config file and
			// environment variables.
			if err := viper.BindPFlag("store.path", cmd.Flags().Lookup("db")); err != nil {
				return err
			}
			if err := viper.BindPFlag("discovery.api_prefix", cmd.Flags().Lookup("api-prefix")); err != nil {
				return err
			}
			if err := viper.BindPFlag("discovery.parallel", cmd.Flags().Lookup("parallel")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config now that flags are bound with the right
			// precedence.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			output := viper.GetString("output")
			format := viper.GetString("format")

			store, err := factstore.Open(ctx, cfg.Store().Path, cfg.Store().PoolSize, logger)
			if err != nil {
				return fmt.Errorf("failed to open fact database: %w", err)
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					logger.Warn("Failed to close fact database", zap.Error(cerr))
				}
			}()

			registry := taint.NewRegistry(categoryPatterns(cfg.Registry()))

			engine, err := taint.NewEngine(store, registry, cfg.Discovery(), logger)
			if err != nil {
				return fmt.Errorf("failed to initialize discovery engine: %w", err)
			}

			results, err := engine.Run(ctx)
			if err != nil {
				logger.Error("Discovery failed", zap.Error(err))
				return err
			}

			reporter, err := reporting.New(format, output, Version)
			if err != nil {
				return err
			}
			defer reporter.Close()

			if err := reporter.Write(results); err != nil {
				return fmt.Errorf("failed to write results: %w", err)
			}

			if output != "" {
				logger.Info("Results written", zap.String("path", output), zap.String("format", format))
			}
			return nil
		},
	}

	discoverCmd.Flags().String("db", "", "path to the fact database (overrides store.path)")
	discoverCmd.Flags().String("api-prefix", "", "versioned API prefix stripped during endpoint normalization")
	discoverCmd.Flags().Bool("parallel", true, "run discovery categories concurrently")
	discoverCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	discoverCmd.Flags().StringP("format", "f", "json", "output format (json)")

	return discoverCmd
}

// categoryPatterns converts the string-keyed registry section from the config
// layer into the typed map the engine consumes. Unknown category names are
// carried through untouched; the engine simply never queries them.
func categoryPatterns(rc config.RegistryConfig) map[taint.Category][]string {
	if len(rc.Patterns) == 0 {
		return nil
	}
	out := make(map[taint.Category][]string, len(rc.Patterns))
	for name, patterns := range rc.Patterns {
		out[taint.Category(name)] = patterns
	}
	return out
}
