package embedding

// ModelInfo describes a known embedding model.
type ModelInfo struct {
	Name       string
	Provider   string
	Dimensions int
}

var knownModels = map[string]ModelInfo{
	"paraphrase-multilingual-mpnet-base-v2":   {"paraphrase-multilingual-mpnet-base-v2", "sentence-transformers", 768},
	"all-MiniLM-L6-v2":                        {"all-MiniLM-L6-v2", "sentence-transformers", 384},
	"hiiamsid/sentence_similarity_spanish_es": {"hiiamsid/sentence_similarity_spanish_es", "sentence-transformers", 768},
	"LaBSE":                                   {"LaBSE", "sentence-transformers", 768},
	"text-embedding-004":                      {"text-embedding-004", "gemini", 768},
	"gemini-embedding-001":                    {"gemini-embedding-001", "gemini", 768},
	"jina-embeddings-v3":                      {"jina-embeddings-v3", "jina", 1024},
	"nomic-embed-text":                        {"nomic-embed-text", "ollama", 768},
	"mxbai-embed-large":                       {"mxbai-embed-large", "ollama", 1024},
}

// Lookup returns the catalog entry for a model name.
func Lookup(name string) (ModelInfo, bool) {
	info, ok := knownModels[name]
	return info, ok
}

// ResolveDimensions returns the configured dimension when set, otherwise the
// catalog dimension, otherwise 0 (unknown, not checked).
func ResolveDimensions(name string, configured int) int {
	if configured > 0 {
		return configured
	}
	if info, ok := knownModels[name]; ok {
		return info.Dimensions
	}
	return 0
}
