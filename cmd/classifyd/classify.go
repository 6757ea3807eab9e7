package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/classifyd/internal/classifier"
	"github.com/fyrsmithlabs/classifyd/internal/segment"
	"github.com/fyrsmithlabs/classifyd/internal/strategy"
)

var (
	// classify command flags
	clSegmented bool
	clJSON      bool
)

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().BoolVar(&clSegmented, "segmented", false, "classify segment by segment and aggregate")
	classifyCmd.Flags().BoolVar(&clJSON, "json", false, "output the full result as JSON")
}

var classifyCmd = &cobra.Command{
	Use:   "classify [text]",
	Short: "Classify text against the configured topic",
	Long: `Classify text against the configured topic and print the verdict.

Examples:
  # Classify an argument
  classifyd classify "Chapter 4: Limits and Continuity"

  # Classify a captured screen from stdin, segment by segment
  ocr-capture | classifyd classify --segmented -

  # Full result as JSON
  classifyd classify --segmented --json - < screen.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	text, err := readInput(args)
	if err != nil {
		return err
	}

	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close(cmd.Context())

	if clSegmented {
		return classifySegmented(cmd, e, text)
	}
	return classifyWhole(cmd, e, text)
}

func classifyWhole(cmd *cobra.Command, e *engine, text string) error {
	s, err := e.factory.NewStrategy(cmd.Context(),
		strategy.Type(e.cfg.Strategy.Type), e.cfg.Strategy.Model, e.topicConfig())
	if err != nil {
		return err
	}
	res, err := s.ClassifyWithConfidence(cmd.Context(), text)
	if err != nil {
		return err
	}
	if clJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%.3f)\n", res.Classification, res.Confidence)
	return nil
}

func classifySegmented(cmd *cobra.Command, e *engine, text string) error {
	c, err := classifier.NewSegmented(e.factory, classifier.Config{
		Strategy:            strategy.Type(e.cfg.Strategy.Type),
		Model:               e.cfg.Strategy.Model,
		Topic:               e.topicConfig(),
		ConfidenceThreshold: e.cfg.Segmented.ConfidenceThreshold,
		SegmentProportion:   e.cfg.Segmented.SegmentProportion,
		Mode:                segment.Type(e.cfg.Segmented.Mode),
	}, e.logger)
	if err != nil {
		return err
	}
	res, err := c.Classify(cmd.Context(), text)
	if err != nil {
		return err
	}
	if clJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%.3f, %d segments)\n",
		res.Classification, res.Confidence, len(res.Segments))
	return nil
}

// readInput returns the positional argument, or stdin when absent or "-".
func readInput(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	if len(content) == 0 {
		return "", fmt.Errorf("no text to classify")
	}
	return string(content), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
