package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/classifyd/internal/strategy"
)

var (
	// evaluate/recommend command flags
	evJSON        bool
	recMaxLatency time.Duration
	recMinAcc     float64
	recMaxMemMB   int
	recSpeed      bool
)

func init() {
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(recommendCmd)
	evaluateCmd.Flags().BoolVar(&evJSON, "json", false, "output results as JSON")
	recommendCmd.Flags().BoolVar(&evJSON, "json", false, "output results as JSON")
	recommendCmd.Flags().DurationVar(&recMaxLatency, "max-latency", 0, "maximum expected per-call latency (0 = unconstrained)")
	recommendCmd.Flags().Float64Var(&recMinAcc, "min-accuracy", 0, "minimum expected accuracy in [0,1]")
	recommendCmd.Flags().IntVar(&recMaxMemMB, "max-memory-mb", 0, "maximum expected memory in MB (0 = unconstrained)")
	recommendCmd.Flags().BoolVar(&recSpeed, "prefer-speed", false, "rank candidates by latency instead of accuracy")
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Survey every strategy and model pair",
	Long: `Survey every registered strategy type against every locally available
model and report expected accuracy, latency, memory and live availability.

Examples:
  classifyd evaluate
  classifyd evaluate --json`,
	RunE: runEvaluate,
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend the best strategy for a set of requirements",
	Long: `Recommend the strategy and model pair that best satisfies the given
requirements. When nothing qualifies, the known-good default is returned
with a rationale instead of an error.

Examples:
  classifyd recommend
  classifyd recommend --max-latency 100ms --max-memory-mb 1000
  classifyd recommend --prefer-speed`,
	RunE: runRecommend,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close(cmd.Context())

	evals := e.evaluator.EvaluateAll(cmd.Context())
	if evJSON {
		return printJSON(cmd.OutOrStdout(), evals)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tMODEL\tACCURACY\tLATENCY\tMEMORY\tAVAILABLE")
	for _, ev := range evals {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%dMB\t%t\n",
			ev.Strategy, ev.Model, ev.ExpectedAccuracy, ev.ExpectedLatency, ev.MemoryMB, ev.Available)
	}
	return w.Flush()
}

func runRecommend(cmd *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close(cmd.Context())

	rec, err := e.evaluator.Recommend(cmd.Context(), strategy.ModelRequirements{
		MaxLatency:  recMaxLatency,
		MinAccuracy: recMinAcc,
		MaxMemoryMB: recMaxMemMB,
		PreferSpeed: recSpeed,
	})
	if err != nil {
		return err
	}
	if evJSON {
		return printJSON(cmd.OutOrStdout(), rec)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s / %s\n", rec.Strategy, rec.Model)
	fmt.Fprintf(out, "  expected accuracy: %.2f\n", rec.ExpectedAccuracy)
	fmt.Fprintf(out, "  expected latency:  %s\n", rec.ExpectedLatency)
	fmt.Fprintf(out, "  memory:            %dMB\n", rec.MemoryUsageMB)
	fmt.Fprintf(out, "  rationale:         %s\n", rec.Rationale)
	for _, alt := range rec.Alternatives {
		fmt.Fprintf(out, "  alternative: %s / %s (%s)\n", alt.Strategy, alt.Model, alt.Reason)
	}
	return nil
}
