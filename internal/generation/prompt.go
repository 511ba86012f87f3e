package generation

import (
	"fmt"
	"strings"

	"github.com/aalabel/aalabel-cli/internal/model"
)

// Response markers the section prompt asks the backend to emit.
const (
	MarkerContent       = "### CONTENIDO ARMONIZADO"
	MarkerJustification = "### JUSTIFICACIÓN"
	MarkerSources       = "### FUENTES"
)

// SystemPrompt is sent as the system message on every call.
const SystemPrompt = "Eres un experto en regulación farmacéutica de la región andina."

// SectionInput is everything the section prompt is built from.
type SectionInput struct {
	SectionName   string
	Description   string
	Jurisdictions []string
	Evidence      []model.RetrievedEvidence
}

// SectionPrompt renders the harmonization prompt for one section. The
// output depends only on its input.
func SectionPrompt(in SectionInput) string {
	var ev strings.Builder
	for i, e := range in.Evidence {
		country := e.JurisdictionName
		if country == "" {
			country = e.JurisdictionCode
		}
		fmt.Fprintf(&ev, "\n[ARTÍCULO %d - %s]\n", i+1, country)
		fmt.Fprintf(&ev, "Documento: %s\n", e.SourceDocument)
		fmt.Fprintf(&ev, "Artículo: %s\n", e.ArticleNumber)
		fmt.Fprintf(&ev, "Relevancia: %.2f%%\n\n", e.Similarity*100)
		ev.WriteString(e.Text)
		ev.WriteString("\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TAREA: Armonizar la sección %q de una etiqueta farmacéutica para los países: %s.\n\n",
		in.SectionName, strings.Join(in.Jurisdictions, ", "))
	b.WriteString("DESCRIPCIÓN DE LA SECCIÓN:\n")
	b.WriteString(in.Description)
	b.WriteString("\n\nOBJETIVO:\n")
	b.WriteString("Generar el contenido de esta sección que cumpla con los requisitos normativos de TODOS los países especificados, aplicando el criterio de MÁXIMA RESTRICTIVIDAD cuando hay diferencias.\n\n")
	b.WriteString("EVIDENCIA NORMATIVA:\n")
	b.WriteString(ev.String())
	b.WriteString(`
INSTRUCCIONES:
1. Analiza los requisitos de cada país basándote ÚNICAMENTE en la evidencia proporcionada
2. Identifica diferencias entre países
3. Aplica el criterio de MÁXIMA RESTRICTIVIDAD (incluir el requisito más estricto)
4. Redacta el contenido armonizado en español claro y profesional
5. NO inventes requisitos que no aparezcan en la evidencia
6. Si la evidencia es insuficiente, indícalo claramente

FORMATO DE RESPUESTA:
`)
	b.WriteString(MarkerContent + "\n[Escribe aquí el texto armonizado]\n\n")
	b.WriteString(MarkerJustification + "\n[Explica brevemente qué requisitos de qué países se consideraron y por qué]\n\n")
	b.WriteString(MarkerSources + "\n[Lista los artículos específicos que respaldaron cada decisión]\n\n")
	b.WriteString("NOTA: Sé preciso, profesional y apégate estrictamente a la evidencia normativa proporcionada.\n")
	return b.String()
}

// maxReportSources caps the sources listed per section in the report prompt.
const maxReportSources = 3

// JustificationPrompt renders the prompt for the label-level justification
// report.
func JustificationPrompt(label *model.HarmonizedLabel) string {
	var sections strings.Builder
	for _, s := range label.Sections {
		sources := make([]string, 0, len(s.Evidence))
		for _, e := range s.Evidence {
			sources = append(sources, fmt.Sprintf("%s - %s Art. %s", e.JurisdictionCode, e.SourceDocument, e.ArticleNumber))
		}
		listed := sources
		more := ""
		if len(listed) > maxReportSources {
			listed = listed[:maxReportSources]
			more = "..."
		}
		fmt.Fprintf(&sections, "\n**%s**\n", s.Name)
		fmt.Fprintf(&sections, "- Fuentes: %s%s\n", strings.Join(listed, "; "), more)
		fmt.Fprintf(&sections, "- Evidencia citada: %d\n", len(s.Evidence))
		fmt.Fprintf(&sections, "- Criterio: %s\n", s.Policy)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TAREA: Generar un análisis justificativo profesional para la etiqueta armonizada de %q.\n\n", label.ProductName)
	b.WriteString("SECCIONES ARMONIZADAS:\n")
	b.WriteString(sections.String())
	fmt.Fprintf(&b, "\nPAÍSES CONSIDERADOS: %s\n", strings.Join(label.Jurisdictions, ", "))
	b.WriteString(`
OBJETIVO:
Crear un documento de análisis que justifique cada decisión de armonización con citas específicas a artículos normativos.

ESTRUCTURA REQUERIDA:

## 1. RESUMEN EJECUTIVO
- Producto armonizado
- Países incluidos
- Metodología aplicada (RAG + máxima restrictividad)

## 2. ANÁLISIS POR SECCIÓN
Para cada sección:
- Requisitos por país
- Diferencias identificadas
- Decisión de armonización
- Artículos normativos aplicados

## 3. TABLA DE TRAZABILIDAD
Tabla con columnas: Sección | País | Documento | Artículo | Requisito

## 4. CONCLUSIONES
- Nivel de armonización logrado
- Áreas de divergencia significativa
- Recomendaciones

FORMATO: Markdown profesional
EXTENSIÓN: 3-5 páginas
TONO: Técnico, preciso, regulatorio
`)
	return b.String()
}
