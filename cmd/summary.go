package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/macindex/internal/utils"
)

var (
	sumJSON   bool
	sumOutput string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize the loaded dataset",
	Long:  "Report rows read and dropped, the date range, per-country price statistics and the countries eligible for regression.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(cmd.Context())
		if err != nil {
			return err
		}
		rep, err := p.Summary(cmd.Context())
		if err != nil {
			return err
		}
		var out []byte
		if sumJSON {
			if out, err = utils.PrettyJSON(rep); err != nil {
				return err
			}
			out = append(out, '\n')
		} else {
			out = []byte(rep.Markdown())
		}
		if sumOutput != "" {
			if err := utils.SafeWriteFile(sumOutput, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", sumOutput)
			return nil
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().BoolVar(&sumJSON, "json", false, "print JSON instead of the text report")
	summaryCmd.Flags().StringVarP(&sumOutput, "output", "o", "", "write the report to a file")
}
