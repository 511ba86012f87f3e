package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aalabel/aalabel-cli/internal/catalog"
	"github.com/aalabel/aalabel-cli/internal/corpus"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the normative corpus in the evidence store",
}

var corpusLoadCmd = &cobra.Command{
	Use:   "load <corpus.jsonl>",
	Short: "Load jurisdictions, articles and precomputed embeddings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sectionsFile, _ := cmd.Flags().GetString("sections")
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		if err := cfg.Validate("load"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := corpus.NewLoader(st, corpus.WithBatchSize(batchSize)).LoadFile(ctx, args[0])
		if err != nil {
			return err
		}

		if sectionsFile != "" {
			defs, err := catalog.LoadFile(sectionsFile)
			if err != nil {
				return err
			}
			if err := st.UpsertSections(ctx, defs); err != nil {
				return eris.Wrap(err, "corpus: upsert sections")
			}
			zap.L().Info("section catalog loaded", zap.Int("sections", len(defs)))
		}

		stats, err := st.CorpusStats(ctx)
		if err != nil {
			return eris.Wrap(err, "corpus stats")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"loaded": res, "store": stats})
	},
}

var corpusStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the evidence store holds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.CorpusStats(ctx)
		if err != nil {
			return eris.Wrap(err, "corpus stats")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the evidence store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
		return st.Close()
	},
}

func init() {
	corpusLoadCmd.Flags().String("sections", "", "optional section catalog YAML/JSON to load into the store")
	corpusLoadCmd.Flags().Int("batch-size", 500, "rows per store write")
	corpusCmd.AddCommand(corpusLoadCmd)
	corpusCmd.AddCommand(corpusStatsCmd)
	rootCmd.AddCommand(corpusCmd)
	rootCmd.AddCommand(migrateCmd)
}
