package extract

import (
	"context"
	"fmt"
	"sync"

	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/ledger"
)

// Extractor turns one source's upstream content into candidate records,
// in upstream order.
type Extractor interface {
	Extract(ctx context.Context, src *feed.Source) ([]ledger.Record, error)
}

// Enricher is implemented by extractors that can add detail to records
// after deduplication, so that only new records cost extra requests.
type Enricher interface {
	Enrich(ctx context.Context, src *feed.Source, records []ledger.Record)
}

type Registry struct {
	extractors map[feed.SourceType]Extractor
	mu         sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{extractors: make(map[feed.SourceType]Extractor)}
}

func (r *Registry) Register(sourceType feed.SourceType, extractor Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[sourceType] = extractor
}

func (r *Registry) For(sourceType feed.SourceType) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	extractor, ok := r.extractors[sourceType]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for source type %q", sourceType)
	}
	return extractor, nil
}
