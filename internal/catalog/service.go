package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/nextgen-api/internal/metrics"
	"github.com/Checker-Finance/nextgen-api/internal/store"
	"github.com/Checker-Finance/nextgen-api/pkg/nextgen"
)

const (
	categoriesKey    = "master:codes"
	detailsKeyPrefix = "master:codes:"
	kindCategories   = "categories"
	kindCodeDetails  = "details"
)

// Source is the upstream the catalog reads through to.
type Source interface {
	Codes(ctx context.Context) (*nextgen.MasterCodes, error)
	SearchCodes(ctx context.Context, category string, opts nextgen.SearchOptions) ([]nextgen.CodeDetail, error)
}

// Service serves master codes from the store, falling back to NextGen.
type Service struct {
	src    Source
	store  store.Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewService(src Source, st store.Store, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{src: src, store: st, ttl: ttl, logger: logger}
}

// Categories returns all master code categories.
func (s *Service) Categories(ctx context.Context) (*nextgen.MasterCodes, error) {
	var cached nextgen.MasterCodes
	if s.lookup(ctx, categoriesKey, kindCategories, &cached) {
		return &cached, nil
	}
	return s.RefreshCategories(ctx)
}

// CategoriesByPattern filters Categories case-insensitively.
func (s *Service) CategoriesByPattern(ctx context.Context, pattern string) (*nextgen.MasterCodes, error) {
	all, err := s.Categories(ctx)
	if err != nil {
		return nil, err
	}
	matches := all.ByPattern(pattern)
	return &nextgen.MasterCodes{Codes: matches, TotalCount: len(matches)}, nil
}

// RefreshCategories fetches the category list upstream and rewrites the cache.
func (s *Service) RefreshCategories(ctx context.Context) (*nextgen.MasterCodes, error) {
	codes, err := s.src.Codes(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch master codes: %w", err)
	}
	s.save(ctx, categoriesKey, codes)
	return codes, nil
}

// Details returns the codes of category. Unfiltered results are cached;
// searches always go upstream.
func (s *Service) Details(ctx context.Context, category string, opts nextgen.SearchOptions) ([]nextgen.CodeDetail, error) {
	cacheable := opts.Term == "" && opts.Limit == 0
	key := detailsKeyPrefix + category

	if cacheable {
		var cached []nextgen.CodeDetail
		if s.lookup(ctx, key, kindCodeDetails, &cached) {
			return cached, nil
		}
	}

	details, err := s.src.SearchCodes(ctx, category, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch code details for %s: %w", category, err)
	}
	if cacheable {
		s.save(ctx, key, details)
	}
	return details, nil
}

// Exists reports whether category is a known master code category.
func (s *Service) Exists(ctx context.Context, category string) (bool, error) {
	all, err := s.Categories(ctx)
	if err != nil {
		return false, err
	}
	return all.Has(category), nil
}

// Invalidate drops the cached category list and the details of categories.
func (s *Service) Invalidate(ctx context.Context, categories ...string) {
	keys := append([]string{categoriesKey}, prefixed(categories)...)
	for _, k := range keys {
		if err := s.store.Delete(ctx, k); err != nil {
			s.logger.Warn("catalog.invalidate_failed", zap.String("key", k), zap.Error(err))
		}
	}
}

func (s *Service) lookup(ctx context.Context, key, kind string, dest any) bool {
	err := s.store.GetJSON(ctx, key, dest)
	switch {
	case err == nil:
		metrics.IncCatalogCache(kind, true)
		return true
	case errors.Is(err, store.ErrNotFound):
	default:
		s.logger.Warn("catalog.cache_read_failed", zap.String("key", key), zap.Error(err))
	}
	metrics.IncCatalogCache(kind, false)
	return false
}

func (s *Service) save(ctx context.Context, key string, value any) {
	if err := s.store.SetJSON(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("catalog.cache_write_failed", zap.String("key", key), zap.Error(err))
	}
}

func prefixed(categories []string) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = detailsKeyPrefix + c
	}
	return out
}
