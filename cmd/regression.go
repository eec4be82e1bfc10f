package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/macindex/internal/pipeline"
	"github.com/KaramelBytes/macindex/internal/utils"
)

var (
	scoreSeed  uint64
	scoreJSON  bool
	predSeed   uint64
	predOffset int
	predJSON   bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <country>",
	Short: "Coefficient of determination of the trend line on held-out points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(cmd.Context())
		if err != nil {
			return err
		}
		f, err := p.Score(cmd.Context(), args[0], seedFlag(cmd, scoreSeed))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if scoreJSON {
			b, err := utils.PrettyJSON(map[string]any{
				"country": f.Country, "r_squared": f.RSquared, "seed": f.Seed,
				"train": len(f.Train), "test": len(f.Test), "in_sample": f.InSample,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}
		where := fmt.Sprintf("%d held-out points", len(f.Test))
		if f.InSample {
			where = "training points (series too short to hold out)"
		}
		fmt.Fprintf(out, "%s R²: %.4f on %s (seed %d)\n", f.Country, f.RSquared, where, f.Seed)
		return nil
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict <country> [YYYY-MM-DD]",
	Short: "Forecast the USD price on a date from the linear trend",
	Long:  "Forecast the USD price of a Big Mac on a date, given as YYYY-MM-DD or as --offset days since 2000-01-01.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			offset int
			err    error
		)
		switch {
		case len(args) == 2 && cmd.Flags().Changed("offset"):
			return fmt.Errorf("give either a date or --offset, not both")
		case len(args) == 2:
			offset, err = pipeline.ParseQuery(args[1])
			if err != nil {
				return err
			}
		case cmd.Flags().Changed("offset"):
			offset = predOffset
		default:
			return fmt.Errorf("missing date: pass YYYY-MM-DD or --offset")
		}
		p, err := buildPipeline(cmd.Context())
		if err != nil {
			return err
		}
		pred, err := p.Predict(cmd.Context(), args[0], offset, seedFlag(cmd, predSeed))
		if err != nil {
			return err
		}
		price := decimal.NewFromFloat(pred.Price).StringFixed(2)
		out := cmd.OutOrStdout()
		if predJSON {
			b, err := utils.PrettyJSON(map[string]any{
				"country": pred.Country, "date": pred.Date, "offset": pred.Offset,
				"price": pred.Price, "price_usd": price, "r_squared": pred.RSquared, "seed": pred.Seed,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}
		fmt.Fprintf(out, "Predicted Big Mac price in %s on %s: $%s\n", pred.Country, pred.Date, price)
		fmt.Fprintf(out, "Trend R² %.4f, split seed %d\n", pred.RSquared, pred.Seed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd, predictCmd)
	scoreCmd.Flags().Uint64Var(&scoreSeed, "seed", 0, "split seed for a reproducible score")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "print JSON")
	predictCmd.Flags().Uint64Var(&predSeed, "seed", 0, "split seed for a reproducible forecast")
	predictCmd.Flags().IntVar(&predOffset, "offset", 0, "target as days since 2000-01-01 instead of a date")
	predictCmd.Flags().BoolVar(&predJSON, "json", false, "print JSON")
}
