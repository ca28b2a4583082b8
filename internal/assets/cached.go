package assets

import (
	"context"
	"fmt"
	"log/slog"
)

// Cache stores fetched asset bytes keyed by URI.
type Cache interface {
	Get(ctx context.Context, uri string) ([]byte, bool, error)
	Put(ctx context.Context, uri string, data []byte) error
}

// CachedResolver consults a cache before delegating to another resolver.
type CachedResolver struct {
	next   Resolver
	cache  Cache
	logger *slog.Logger
}

// NewCachedResolver wraps next with cache.
func NewCachedResolver(next Resolver, cache Cache, logger *slog.Logger) *CachedResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedResolver{
		next:   next,
		cache:  cache,
		logger: logger.With("component", "assets"),
	}
}

// ResolvePath delegates to the wrapped resolver.
func (r *CachedResolver) ResolvePath(name string) string {
	return r.next.ResolvePath(name)
}

// FetchBytes returns cached bytes when present. Otherwise it fetches and
// stores the result. Cache failures are logged and never fail the fetch.
func (r *CachedResolver) FetchBytes(ctx context.Context, uri string) ([]byte, error) {
	data, ok, err := r.cache.Get(ctx, uri)
	if err != nil {
		r.logger.Warn("asset cache read failed", "uri", uri, "error", err)
	} else if ok {
		r.logger.Debug("asset cache hit", "uri", uri, "bytes", len(data))
		return data, nil
	}

	data, err = r.next.FetchBytes(ctx, uri)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Put(ctx, uri, data); err != nil {
		r.logger.Warn("asset cache write failed", "uri", uri, "error", err)
	}
	return data, nil
}

// Prefetch resolves and fetches each name through r, stopping at the first error.
// It returns the number of bytes fetched per name.
func Prefetch(ctx context.Context, r Resolver, names ...string) (map[string]int, error) {
	sizes := make(map[string]int, len(names))
	for _, name := range names {
		uri := r.ResolvePath(name)
		data, err := r.FetchBytes(ctx, uri)
		if err != nil {
			return sizes, fmt.Errorf("prefetch %s: %w", name, err)
		}
		sizes[name] = len(data)
	}
	return sizes, nil
}
