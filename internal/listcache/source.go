package listcache

import (
	"context"

	"github.com/FocuswithJustin/alimerge/core/termrec"
	"github.com/FocuswithJustin/alimerge/internal/logging"
)

// Fetcher downloads a raw listing body.
type Fetcher interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// Source serves listings from the cache and falls back to a Fetcher on a miss.
// Failed downloads are never cached.
type Source struct {
	store *Store
	next  Fetcher
}

// NewSource wraps next with store. A nil store disables caching.
func NewSource(store *Store, next Fetcher) *Source {
	return &Source{store: store, next: next}
}

// Listing returns the listing lines for id.
func (s *Source) Listing(ctx context.Context, id string) ([]string, error) {
	if s.store == nil {
		body, err := s.next.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		return termrec.SplitLines(body), nil
	}

	body, ok, err := s.store.Get(ctx, id)
	if err != nil {
		logging.WarnContext(ctx, "cache_read_failed", "sequence", id, "error", err.Error())
	}
	if ok {
		logging.CacheEvent(ctx, "hit", id, "bytes", len(body))
		return termrec.SplitLines(body), nil
	}

	logging.CacheEvent(ctx, "miss", id)
	body, err = s.next.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, id, body); err != nil {
		logging.WarnContext(ctx, "cache_write_failed", "sequence", id, "error", err.Error())
	}
	return termrec.SplitLines(body), nil
}
