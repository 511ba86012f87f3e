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
)

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List the active label sections in catalog order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")

		var lister catalog.SectionLister
		if cfg.Catalog.Source == "" || cfg.Catalog.Source == "store" {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			lister = st
		}

		src, err := catalog.New(cfg, lister)
		if err != nil {
			return err
		}
		defs, err := src.Sections(ctx)
		if err != nil {
			return eris.Wrap(err, "load sections")
		}
		active, err := catalog.Resolve(defs, nil)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(active)
		}
		formatSections(os.Stdout, active)
		return nil
	},
}

func init() {
	sectionsCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(sectionsCmd)
}

// formatSections writes a section catalog table to w.
func formatSections(out io.Writer, defs []model.SectionDefinition) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ORDER\tCODE\tNAME\tMANDATORY")
	_, _ = fmt.Fprintln(w, "-----\t----\t----\t---------")
	for _, d := range defs {
		mandatory := "no"
		if d.Mandatory {
			mandatory = "yes"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.DisplayOrder, d.Code, shorten(d.Name, 40), mandatory)
	}
	_ = w.Flush()
}
