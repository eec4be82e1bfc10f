package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/macindex/internal/utils"
)

var (
	ctyEligible bool
	ctyJSON     bool
)

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "List the countries in the dataset",
	Long:  "List every country (minus excluded aliases) or, with --eligible, the ones with complete history for the regression view.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(cmd.Context())
		if err != nil {
			return err
		}
		var list []string
		if ctyEligible {
			list, err = p.EligibleCountries(cmd.Context())
		} else {
			list, err = p.Countries(cmd.Context())
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if ctyJSON {
			b, err := utils.PrettyJSON(list)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}
		for _, c := range list {
			fmt.Fprintln(out, c)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(countriesCmd)
	countriesCmd.Flags().BoolVar(&ctyEligible, "eligible", false, "only countries eligible for regression")
	countriesCmd.Flags().BoolVar(&ctyJSON, "json", false, "print a JSON array")
}
