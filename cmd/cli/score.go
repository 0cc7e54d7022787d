package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var scoreJSON bool

var scoreCmd = &cobra.Command{
	Use:   "score [path]",
	Short: "Rank the project's files by fix priority.",
	Long:  `Analyzes the project and prints the per-file importance ranking with its sub-scores: complexity, issue density, dependency fan-in, change frequency, and business-logic weight.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		projectPath, _, scores, err := analyzeProject(context.Background(), args[0])
		if err != nil {
			return err
		}

		if scoreJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(scores)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "RANK\tFILE\tOVERALL\tCOMPLEXITY\tDENSITY\tDEPS\tCHURN\tBUSINESS")
		for _, s := range scores {
			fmt.Fprintf(w, "%d\t%s\t%.1f\t%.1f (%s)\t%.1f\t%.1f\t%.1f\t%.1f\n",
				s.Rank, relPath(projectPath, s.File), s.Overall,
				s.Complexity, s.ComplexityBucket, s.IssueDensity,
				s.Dependency, s.ChangeFrequency, s.BusinessLogic)
		}
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "Output scores as JSON")
	rootCmd.AddCommand(scoreCmd)
}
