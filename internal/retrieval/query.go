package retrieval

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// QueryText builds the retrieval query for a label section from its name and
// description: NFC-normalized with runs of whitespace collapsed.
func QueryText(name, description string) string {
	q := strings.TrimSpace(name)
	if d := strings.TrimSpace(description); d != "" {
		if q != "" {
			q += ": "
		}
		q += d
	}
	return NormalizeText(q)
}

// NormalizeText applies Unicode NFC and collapses whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
