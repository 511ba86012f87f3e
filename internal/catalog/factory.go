package catalog

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/config"
	"github.com/aalabel/aalabel-cli/pkg/notion"
)

// New returns the configured section source.
func New(cfg *config.Config, lister SectionLister) (Source, error) {
	switch cfg.Catalog.Source {
	case "", "store":
		return NewStoreSource(lister), nil
	case "file":
		return NewFileSource(cfg.Catalog.Path), nil
	case "notion":
		client := notion.NewClient(cfg.Notion.Token,
			notion.WithRateLimit(cfg.Notion.RateLimit),
			notion.WithRetries(cfg.Notion.Retries),
			notion.WithTimeout(time.Duration(cfg.Notion.TimeoutSecs)*time.Second),
		)
		return NewNotionSource(client, cfg.Notion.SectionDB), nil
	default:
		return nil, eris.Errorf("catalog: unknown source %q", cfg.Catalog.Source)
	}
}
