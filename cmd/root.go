package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/macindex/internal/cache"
	"github.com/KaramelBytes/macindex/internal/chart"
	cfgpkg "github.com/KaramelBytes/macindex/internal/config"
	"github.com/KaramelBytes/macindex/internal/dataset"
	"github.com/KaramelBytes/macindex/internal/logging"
	"github.com/KaramelBytes/macindex/internal/pipeline"
)

var (
	// Global flags
	cfgFile    string
	envFile    string
	debug      bool
	flagSource string

	// Loaded configuration
	cfg    *cfgpkg.Global
	cfgErr error
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "macindex",
	Short: "macindex: Big Mac price charts, averages and trend forecasts",
	Long: `macindex loads a Big Mac price table (CSV, TSV, XLSX, Parquet, SQLite, local or on S3),
renders per-country and world-average price charts, and fits a linear trend to forecast prices.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.macindex/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with MACINDEX_* overrides")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&flagSource, "source", "", "dataset path or s3://bucket/key (overrides config)")
}

func loadConfig() {
	cfg, cfgErr = nil, nil
	if err := cfgpkg.LoadDotEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		cfgErr = err
		return
	}
	if rootCmd.PersistentFlags().Changed("source") && flagSource != "" {
		c.SourcePath = flagSource
	}
	cfg = c

	l, err := logging.New(cfg.Logging())
	if err != nil {
		cfgErr = err
		return
	}
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	logger = l
}

func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	if cfgErr != nil {
		return nil, fmt.Errorf("load config: %w", cfgErr)
	}
	return nil, errors.New("no config loaded")
}

// buildPipeline wires the configured source, caches and renderer.
func buildPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	c, err := requireConfig()
	if err != nil {
		return nil, err
	}
	datasets, err := dataset.NewCache(c.DatasetCacheSize)
	if err != nil {
		return nil, err
	}
	charts, err := cache.New(ctx, c.ChartCacheOptions())
	if err != nil {
		logging.WithComponent(logger, "cli").WithError(err).Warn("chart cache unavailable, using in-memory cache")
		charts = cache.NewMemory(c.ChartCacheSize, time.Duration(c.ChartCacheTTLSec)*time.Second)
	}
	r := chart.NewRenderer(c.ChartWidth, c.ChartHeight)
	return pipeline.New(c.Source(), datasets, r, charts, c.PipelineOptions(), logger), nil
}

// seedFlag returns the --seed value only when the flag was given.
func seedFlag(cmd *cobra.Command, v uint64) *uint64 {
	if cmd.Flags().Changed("seed") {
		return &v
	}
	return nil
}
