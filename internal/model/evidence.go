package model

import "sort"

// RetrievedEvidence is one ranked retrieval hit. Similarity is the dot
// product of unit vectors.
type RetrievedEvidence struct {
	ArticleID        int64   `json:"article_id"`
	JurisdictionCode string  `json:"jurisdiction"`
	JurisdictionName string  `json:"jurisdiction_name"`
	SourceDocument   string  `json:"source_document"`
	ArticleNumber    string  `json:"article_number"`
	Text             string  `json:"text"`
	Similarity       float64 `json:"similarity"`
}

// SortEvidence orders evidence by similarity descending, breaking ties by
// ascending article ID. The order is total, so identical inputs always
// produce identical sequences.
func SortEvidence(ev []RetrievedEvidence) {
	sort.SliceStable(ev, func(i, j int) bool {
		if ev[i].Similarity != ev[j].Similarity {
			return ev[i].Similarity > ev[j].Similarity
		}
		return ev[i].ArticleID < ev[j].ArticleID
	})
}

// EvidenceLess reports whether a ranks strictly before b.
func EvidenceLess(a, b RetrievedEvidence) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.ArticleID < b.ArticleID
}
