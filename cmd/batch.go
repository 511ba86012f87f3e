package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/aalabel/aalabel-cli/internal/artifact"
	"github.com/aalabel/aalabel-cli/internal/model"
)

// productSpec is one product entry of a batch manifest.
type productSpec struct {
	Name          string   `yaml:"name"`
	Jurisdictions []string `yaml:"jurisdictions"`
	Sections      []string `yaml:"sections"`
}

type batchManifest struct {
	Products []productSpec `yaml:"products"`
}

// loadManifest reads a YAML batch manifest.
func loadManifest(path string) ([]productSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read manifest %s", path)
	}
	var m batchManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "batch: parse manifest %s", path)
	}
	for i, p := range m.Products {
		if p.Name == "" {
			return nil, eris.Errorf("batch: product %d has no name", i)
		}
		if len(p.Jurisdictions) == 0 {
			return nil, eris.Errorf("batch: product %q has no jurisdictions", p.Name)
		}
	}
	return m.Products, nil
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Harmonize the labels of several products from a manifest",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		manifest, _ := cmd.Flags().GetString("manifest")
		failFast, _ := cmd.Flags().GetBool("fail-fast")
		withReport, _ := cmd.Flags().GetBool("report")
		if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
			cfg.Batch.Concurrency = c
		}
		applyModelFlags(cmd)

		products, err := loadManifest(manifest)
		if err != nil {
			return err
		}

		env, err := openEngine(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := processBatch(ctx, products, cfg.Batch.Concurrency, failFast,
			func(ctx context.Context, p productSpec) (*model.HarmonizedLabel, error) {
				label, err := env.Orchestrator.HarmonizeLabel(ctx, p.Name, p.Jurisdictions, p.Sections)
				if err != nil {
					return nil, err
				}
				var report string
				if withReport {
					if report, err = env.Orchestrator.JustificationReport(ctx, label); err != nil {
						zap.L().Warn("justification report failed", zap.String("product", p.Name), zap.Error(err))
					}
				}
				if _, err := artifact.Publish(ctx, env.Sink, cfg.Artifacts.Prefix, label, report); err != nil {
					return nil, eris.Wrap(err, "publish artifacts")
				}
				return label, nil
			})
		if err != nil {
			return err
		}
		if sum.Failed > 0 {
			return eris.Errorf("batch: %d of %d products failed", sum.Failed, sum.Total)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().String("manifest", "products.yaml", "YAML manifest listing products")
	batchCmd.Flags().Bool("fail-fast", false, "cancel remaining products after the first failure")
	batchCmd.Flags().Bool("report", false, "also generate justification reports")
	batchCmd.Flags().Int("concurrency", 0, "products harmonized in parallel (default from config)")
	addModelFlags(batchCmd)
	rootCmd.AddCommand(batchCmd)
}

// harmonizeFunc runs one product through the pipeline.
type harmonizeFunc func(ctx context.Context, p productSpec) (*model.HarmonizedLabel, error)

// batchSummary counts batch outcomes.
type batchSummary struct {
	Total     int
	Succeeded int64
	Failed    int64
	Skipped   int64
	Review    int64
}

// processBatch harmonizes independent products concurrently. Sections of a
// single product stay sequential inside fn. With failFast the first failure
// cancels the remaining products and is returned.
func processBatch(ctx context.Context, products []productSpec, concurrency int, failFast bool, fn harmonizeFunc) (batchSummary, error) {
	sum := batchSummary{Total: len(products)}
	if len(products) == 0 {
		zap.L().Info("no products in manifest")
		return sum, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("products", len(products)),
		zap.Int("concurrency", concurrency),
		zap.Bool("fail_fast", failFast),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed, skipped, review atomic.Int64

	for _, p := range products {
		g.Go(func() error {
			log := zap.L().With(zap.String("product", p.Name))
			if gctx.Err() != nil {
				skipped.Add(1)
				return nil
			}

			label, err := fn(gctx, p)
			if err != nil {
				failed.Add(1)
				log.Error("harmonization failed", zap.Error(err))
				if failFast {
					return eris.Wrapf(err, "batch: product %s", p.Name)
				}
				return nil
			}

			succeeded.Add(1)
			if len(label.NeedsReview()) > 0 {
				review.Add(1)
			}
			log.Info("harmonization complete",
				zap.String("run_id", label.Metadata.RunID),
				zap.Int("sections", len(label.Sections)),
				zap.Int("insufficient", label.Metadata.InsufficientSections),
			)
			return nil
		})
	}

	err := g.Wait()
	sum.Succeeded = succeeded.Load()
	sum.Failed = failed.Load()
	sum.Skipped = skipped.Load()
	sum.Review = review.Load()

	zap.L().Info("batch complete",
		zap.Int64("succeeded", sum.Succeeded),
		zap.Int64("failed", sum.Failed),
		zap.Int64("skipped", sum.Skipped),
		zap.Int64("needs_review", sum.Review),
	)
	return sum, err
}
