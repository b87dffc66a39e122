package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/redclawsec/redclaw/internal/engagement"
	"github.com/redclawsec/redclaw/internal/report"
)

// newReportCmd creates the `report` command, which renders a stored result
// JSON as markdown.
func newReportCmd() *cobra.Command {
	var outputPath string

	reportCmd := &cobra.Command{
		Use:   "report [result.json]",
		Short: "Renders a saved engagement result as a markdown report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading result file: %w", err)
			}

			var result engagement.Result
			if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &result); err != nil {
				return fmt.Errorf("parsing result file: %w", err)
			}

			md := report.Render(&result)
			if outputPath == "" {
				fmt.Fprint(cmd.OutOrStdout(), md)
				return nil
			}
			return os.WriteFile(outputPath, []byte(md), 0o644)
		},
	}

	reportCmd.Flags().StringVar(&outputPath, "output", "", "write the markdown to this path instead of stdout")
	return reportCmd
}
