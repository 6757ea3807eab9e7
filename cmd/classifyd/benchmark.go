package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/classifyd/internal/evaluator"
)

var bmJSON bool

func init() {
	rootCmd.AddCommand(benchmarkCmd)
	benchmarkCmd.Flags().BoolVar(&bmJSON, "json", false, "output results as JSON")
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark <cases.yaml>",
	Short: "Benchmark the top strategies on labeled samples",
	Long: `Benchmark the top available strategies on a YAML file of labeled
samples and report measured accuracy and latency.

The file is a list of cases:

  - text: "Chapter 4: Limits and Continuity"
    expected_match: true
  - text: "cat videos compilation"
    expected_match: false

Examples:
  classifyd benchmark testdata/cases.yaml
  classifyd benchmark --json cases.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runBenchmark,
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading cases file: %w", err)
	}
	var cases []evaluator.TestCase
	if err := yaml.Unmarshal(content, &cases); err != nil {
		return fmt.Errorf("parsing cases file %s: %w", args[0], err)
	}

	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close(cmd.Context())

	results, err := e.evaluator.Benchmark(cmd.Context(), cases)
	if err != nil {
		return err
	}
	if bmJSON {
		return printJSON(cmd.OutOrStdout(), results)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tMODEL\tACCURACY\tAVG LATENCY\tSAMPLES")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%d\n",
			r.Strategy, r.Model, r.Accuracy, r.AvgLatency, r.Samples)
	}
	return w.Flush()
}
