// Package artifact stores rendered label artifacts on the local filesystem
// or in S3.
package artifact

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/aalabel/aalabel-cli/internal/config"
	"github.com/aalabel/aalabel-cli/internal/export"
	"github.com/aalabel/aalabel-cli/internal/model"
)

// Sink stores one artifact under key and returns its location.
type Sink interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// New creates the Sink selected by cfg.Sink. An empty sink means local.
func New(ctx context.Context, cfg config.ArtifactsConfig) (Sink, error) {
	switch cfg.Sink {
	case "", "local":
		dir := cfg.Dir
		if dir == "" {
			dir = "out"
		}
		return NewLocalSink(dir), nil
	case "s3":
		return NewS3Sink(ctx, S3Config{Bucket: cfg.Bucket, Region: cfg.Region})
	default:
		return nil, eris.Errorf("artifact: unknown sink %q", cfg.Sink)
	}
}

// LocalSink writes artifacts below a root directory.
type LocalSink struct {
	root string
}

// NewLocalSink creates a LocalSink rooted at dir.
func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{root: dir}
}

// Put writes data to root/key, creating parent directories.
func (s *LocalSink) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", eris.Errorf("artifact: key %q escapes sink root", key)
	}
	p := filepath.Join(s.root, clean)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", eris.Wrapf(err, "artifact: mkdir for %s", key)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "artifact: write %s", key)
	}
	return p, nil
}

// Key builds prefix/product-slug/run-id/name.
func Key(prefix, product, runID, name string) string {
	parts := make([]string, 0, 4)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, Slug(product), runID, name)
	return path.Join(parts...)
}

// Slug lowercases s, strips accents and replaces runs of other characters
// with a single dash.
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "producto"
	}
	return out
}

// Publish renders label (and the optional report) and stores every file
// under prefix/product-slug/run-id/. It returns the stored locations.
func Publish(ctx context.Context, sink Sink, prefix string, label *model.HarmonizedLabel, report string) ([]string, error) {
	files, err := export.Render(label, report)
	if err != nil {
		return nil, err
	}
	runID := label.Metadata.RunID
	if runID == "" {
		runID = label.GeneratedAt.UTC().Format("20060102T150405Z")
	}

	locations := make([]string, 0, len(files))
	for _, f := range files {
		loc, err := sink.Put(ctx, Key(prefix, label.ProductName, runID, f.Name), f.Data, f.ContentType)
		if err != nil {
			return locations, err
		}
		locations = append(locations, loc)
	}
	zap.L().Info("artifact: label published",
		zap.String("product", label.ProductName),
		zap.String("run_id", runID),
		zap.Int("files", len(locations)),
	)
	return locations, nil
}
