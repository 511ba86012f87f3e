// Package export renders harmonized labels into the artifacts handed to
// regulatory reviewers.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/model"
)

// ReviewFlag marks sections whose text is sentinel, not generated.
const ReviewFlag = "REVISIÓN MANUAL REQUERIDA"

// Disclaimer heads every rendered label.
const Disclaimer = "Documento orientativo generado automáticamente. Requiere revisión regulatoria antes de su uso."

// WriteLabelJSON writes label as indented JSON.
func WriteLabelJSON(w io.Writer, label *model.HarmonizedLabel) error {
	if label == nil {
		return eris.New("export: nil label")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(label); err != nil {
		return eris.Wrap(err, "export: encode label json")
	}
	return nil
}

// WriteLabelMarkdown writes label as a markdown document. Sections without
// evidence carry the ReviewFlag.
func WriteLabelMarkdown(w io.Writer, label *model.HarmonizedLabel) error {
	if label == nil {
		return eris.New("export: nil label")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Etiqueta armonizada: %s\n\n", label.ProductName)
	fmt.Fprintf(&b, "> %s\n\n", Disclaimer)
	fmt.Fprintf(&b, "- **Jurisdicciones:** %s\n", strings.Join(label.Jurisdictions, ", "))
	fmt.Fprintf(&b, "- **Generado:** %s\n", label.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Modelo de embeddings:** %s\n", label.Metadata.EmbeddingModel)
	fmt.Fprintf(&b, "- **Modelo de generación:** %s\n", label.Metadata.GenerationBackend)
	if label.Metadata.RunID != "" {
		fmt.Fprintf(&b, "- **Ejecución:** %s\n", label.Metadata.RunID)
	}
	if review := label.NeedsReview(); len(review) > 0 {
		fmt.Fprintf(&b, "- **Secciones para revisión manual:** %s\n", strings.Join(review, ", "))
	}
	b.WriteString("\n")

	for i, s := range label.Sections {
		fmt.Fprintf(&b, "## %d. %s (%s)\n\n", i+1, s.Name, s.Code)
		if s.InsufficientEvidence {
			fmt.Fprintf(&b, "> **%s**: sin evidencia normativa suficiente para esta sección.\n\n", ReviewFlag)
		}
		b.WriteString(strings.TrimSpace(s.Text))
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "**Política:** %s\n\n", s.Policy)

		if s.Justification != "" {
			b.WriteString("### Justificación\n\n")
			b.WriteString(strings.TrimSpace(s.Justification))
			b.WriteString("\n\n")
		}

		if len(s.Evidence) > 0 {
			b.WriteString("### Evidencia citada\n\n")
			b.WriteString("| País | Documento | Artículo | Similitud |\n")
			b.WriteString("|---|---|---|---|\n")
			for _, e := range s.Evidence {
				fmt.Fprintf(&b, "| %s | %s | %s | %.1f%% |\n",
					e.JurisdictionCode, escapeCell(e.SourceDocument), escapeCell(e.ArticleNumber), e.Similarity*100)
			}
			b.WriteString("\n")
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "export: write label markdown")
	}
	return nil
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
