package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aalabel/aalabel-cli/internal/artifact"
	"github.com/aalabel/aalabel-cli/internal/catalog"
	"github.com/aalabel/aalabel-cli/internal/harmonize"
	"github.com/aalabel/aalabel-cli/internal/model"
)

var harmonizeCmd = &cobra.Command{
	Use:   "harmonize",
	Short: "Harmonize every label section of one product",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		product, _ := cmd.Flags().GetString("product")
		jurisdictions, _ := cmd.Flags().GetString("jurisdictions")
		sections, _ := cmd.Flags().GetString("sections")
		withReport, _ := cmd.Flags().GetBool("report")
		noArtifacts, _ := cmd.Flags().GetBool("no-artifacts")

		applyModelFlags(cmd)

		env, err := openEngine(ctx, "harmonize")
		if err != nil {
			return err
		}
		defer env.Close()

		label, err := env.Orchestrator.HarmonizeLabel(ctx, product,
			catalog.SplitCodes(jurisdictions), catalog.SplitCodes(sections))
		if err != nil {
			reportFailure(os.Stderr, err)
			return err
		}

		var report string
		if withReport {
			report, err = env.Orchestrator.JustificationReport(ctx, label)
			if err != nil {
				// Report failures are not fatal.
				zap.L().Warn("justification report failed", zap.Error(err))
			}
		}

		if !noArtifacts {
			if _, err := artifact.Publish(ctx, env.Sink, cfg.Artifacts.Prefix, label, report); err != nil {
				return eris.Wrap(err, "publish artifacts")
			}
		}

		printReviewNotice(os.Stderr, label)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(label)
	},
}

func init() {
	harmonizeCmd.Flags().String("product", "", "product name (required)")
	harmonizeCmd.Flags().String("jurisdictions", "", "comma-separated jurisdiction codes, e.g. CO,EC,PE (required)")
	harmonizeCmd.Flags().String("sections", "", "comma-separated section codes (default: all active)")
	harmonizeCmd.Flags().Bool("report", false, "also generate the justification report")
	harmonizeCmd.Flags().Bool("no-artifacts", false, "skip writing label artifacts")
	addModelFlags(harmonizeCmd)
	_ = harmonizeCmd.MarkFlagRequired("product")
	_ = harmonizeCmd.MarkFlagRequired("jurisdictions")
	rootCmd.AddCommand(harmonizeCmd)
}

// addModelFlags registers the flags that override configured models and
// retrieval defaults.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("embedding-model", "", "embedding model (default from config)")
	cmd.Flags().String("model", "", "generation model, e.g. claude-sonnet-4-5, gemini-2.5-pro, gpt-4o (default from config)")
	cmd.Flags().Int("top-k", 0, "evidence items cited per section (default from config)")
	cmd.Flags().Float64("threshold", -1, "minimum similarity in [0,1] (default from config)")
}

func applyModelFlags(cmd *cobra.Command) {
	if f := cmd.Flags().Lookup("embedding-model"); f != nil && f.Changed {
		cfg.Embedding.Model = f.Value.String()
	}
	if f := cmd.Flags().Lookup("model"); f != nil && f.Changed {
		cfg.Generation.Model = f.Value.String()
	}
	if v, err := cmd.Flags().GetInt("top-k"); err == nil && v > 0 {
		cfg.Retrieval.TopK = v
	}
	if v, err := cmd.Flags().GetFloat64("threshold"); err == nil && v >= 0 {
		cfg.Retrieval.Threshold = v
	}
}

// reportFailure prints which section and stage failed.
func reportFailure(w io.Writer, err error) {
	var se *harmonize.StageError
	if errors.As(err, &se) {
		fmt.Fprintf(w, "harmonization failed: section %s, stage %s\n  %v\n", se.Section, se.Stage, se.Err)
		return
	}
	fmt.Fprintf(w, "harmonization failed: %v\n", err)
}

// printReviewNotice lists sections that carry sentinel text.
func printReviewNotice(w io.Writer, label *model.HarmonizedLabel) {
	review := label.NeedsReview()
	if len(review) == 0 {
		return
	}
	fmt.Fprintf(w, "REVISIÓN MANUAL REQUERIDA: %d section(s) without normative evidence: %s\n",
		len(review), strings.Join(review, ", "))
}
