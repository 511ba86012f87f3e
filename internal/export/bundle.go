package export

import (
	"bytes"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/model"
)

// File is one rendered artifact.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Artifact file names.
const (
	LabelJSONFile    = "label.json"
	LabelMarkdown    = "label.md"
	TraceabilityFile = "trazabilidad.xlsx"
	ReportFile       = "justificacion.md"
)

// Render produces every artifact for label. report is optional.
func Render(label *model.HarmonizedLabel, report string) ([]File, error) {
	var jsonBuf, mdBuf, xlsxBuf bytes.Buffer
	if err := WriteLabelJSON(&jsonBuf, label); err != nil {
		return nil, err
	}
	if err := WriteLabelMarkdown(&mdBuf, label); err != nil {
		return nil, err
	}
	if err := WriteTraceability(&xlsxBuf, label); err != nil {
		return nil, eris.Wrap(err, "export: render")
	}

	files := []File{
		{Name: LabelJSONFile, ContentType: "application/json", Data: jsonBuf.Bytes()},
		{Name: LabelMarkdown, ContentType: "text/markdown; charset=utf-8", Data: mdBuf.Bytes()},
		{Name: TraceabilityFile, ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Data: xlsxBuf.Bytes()},
	}
	if report != "" {
		files = append(files, File{Name: ReportFile, ContentType: "text/markdown; charset=utf-8", Data: []byte(report)})
	}
	return files, nil
}
