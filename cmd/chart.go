package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/macindex/internal/utils"
)

var (
	chartOutput string
	chartSeed   uint64
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render a chart to a PNG file",
}

var chartCountryCmd = &cobra.Command{
	Use:   "country <name>",
	Short: "USD and local-currency price history of one country",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(cmd.Context())
		if err != nil {
			return err
		}
		b, err := p.CountryChart(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeChart(cmd, b, "country-"+fileSlug(args[0])+".png")
	},
}

var chartAverageCmd = &cobra.Command{
	Use:   "average",
	Short: "World average USD price over time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(cmd.Context())
		if err != nil {
			return err
		}
		b, err := p.AverageChart(cmd.Context())
		if err != nil {
			return err
		}
		return writeChart(cmd, b, "average.png")
	},
}

var chartRegressionCmd = &cobra.Command{
	Use:   "regression <name>",
	Short: "Training points, held-out points and the fitted trend line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(cmd.Context())
		if err != nil {
			return err
		}
		res, err := p.Regression(cmd.Context(), args[0], seedFlag(cmd, chartSeed))
		if err != nil {
			return err
		}
		if err := writeChart(cmd, res.PNG, "regression-"+fileSlug(args[0])+".png"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "R²: %.4f (seed %d)\n", res.Fit.RSquared, res.Fit.Seed)
		return nil
	},
}

func writeChart(cmd *cobra.Command, png []byte, fallback string) error {
	path := chartOutput
	if path == "" {
		path = fallback
	}
	if err := utils.SafeWriteFile(path, png); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s (%d bytes)\n", path, len(png))
	return nil
}

// fileSlug turns a country name into a lowercase file name fragment.
func fileSlug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartCountryCmd, chartAverageCmd, chartRegressionCmd)
	chartCmd.PersistentFlags().StringVarP(&chartOutput, "output", "o", "", "output PNG path (default derived from the view)")
	chartRegressionCmd.Flags().Uint64Var(&chartSeed, "seed", 0, "split seed for a reproducible chart")
}
