package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/aalabel/aalabel-cli/internal/catalog"
	"github.com/aalabel/aalabel-cli/internal/model"
	"github.com/aalabel/aalabel-cli/internal/retrieval"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Show the ranked evidence for a free-text query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		jurisdictions, _ := cmd.Flags().GetString("jurisdictions")
		asJSON, _ := cmd.Flags().GetBool("json")
		applyModelFlags(cmd)

		env, err := openEngine(ctx, "retrieve")
		if err != nil {
			return err
		}
		defer env.Close()

		query := retrieval.NormalizeText(args[0])
		evidence, err := env.Retriever.Retrieve(ctx, query, catalog.SplitCodes(jurisdictions),
			cfg.Retrieval.TopK, cfg.Retrieval.Threshold)
		if err != nil {
			return eris.Wrap(err, "retrieve")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(evidence)
		}
		if len(evidence) == 0 {
			fmt.Fprintln(os.Stderr, "No evidence above threshold.")
			return nil
		}
		formatEvidence(os.Stdout, evidence)
		return nil
	},
}

func init() {
	retrieveCmd.Flags().String("jurisdictions", "", "comma-separated jurisdiction codes (required)")
	retrieveCmd.Flags().Bool("json", false, "print JSON instead of a table")
	addModelFlags(retrieveCmd)
	_ = retrieveCmd.MarkFlagRequired("jurisdictions")
	rootCmd.AddCommand(retrieveCmd)
}

// formatEvidence writes a ranked evidence table to w.
func formatEvidence(out io.Writer, evidence []model.RetrievedEvidence) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSIM\tJUR\tARTICLE\tDOCUMENT")
	_, _ = fmt.Fprintln(w, "-\t---\t---\t-------\t--------")
	for i, e := range evidence {
		_, _ = fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\t%s\n",
			i+1, e.Similarity, e.JurisdictionCode, e.ArticleNumber, shorten(e.SourceDocument, 40))
	}
	_ = w.Flush()
}
