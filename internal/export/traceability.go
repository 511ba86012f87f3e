package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/aalabel/aalabel-cli/internal/model"
)

// TraceabilitySheet is the worksheet name of the traceability matrix.
const TraceabilitySheet = "Trazabilidad"

// TraceabilityHeader is the first row of the traceability matrix.
var TraceabilityHeader = []string{"Sección", "Código", "País", "Documento", "Artículo", "Similitud"}

// WriteTraceability writes an XLSX matrix with one row per cited evidence
// item. Sections without evidence get a single row with empty citation
// columns so every section appears in the matrix.
func WriteTraceability(w io.Writer, label *model.HarmonizedLabel) error {
	if label == nil {
		return eris.New("export: nil label")
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(TraceabilitySheet)
	if err != nil {
		return eris.Wrap(err, "export: add traceability sheet")
	}

	header := sheet.AddRow()
	for _, h := range TraceabilityHeader {
		c := header.AddCell()
		c.SetString(h)
		c.GetStyle().Font.Bold = true
	}

	for _, s := range label.Sections {
		if len(s.Evidence) == 0 {
			row := sheet.AddRow()
			addStrings(row, s.Name, s.Code, "", ReviewFlag, "")
			row.AddCell().SetString("")
			continue
		}
		for _, e := range s.Evidence {
			row := sheet.AddRow()
			addStrings(row, s.Name, s.Code, e.JurisdictionCode, e.SourceDocument, e.ArticleNumber)
			row.AddCell().SetFloatWithFormat(e.Similarity, "0.0000")
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write traceability xlsx")
	}
	return nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
