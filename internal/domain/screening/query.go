package screening

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/visitprep/visitprep/internal/platform/cache"
	"github.com/visitprep/visitprep/internal/platform/metrics"
	"github.com/visitprep/visitprep/pkg/pagination"
)

// Query is a list request: filters plus a page selector. Malformed values
// are clamped, never rejected.
type Query struct {
	Status        string
	ScreeningType string
	Search        string
	Page          int
	PageSize      int
}

// normalize canonicalizes the query so equivalent requests share one cache
// key: filters lowercased and trimmed, status resolved to its canonical
// spelling (unrecognized -> "all"), page and page size clamped.
func (q Query) normalize() Query {
	q.Status = strings.ToLower(strings.TrimSpace(q.Status))
	if q.Status != "" && q.Status != "all" {
		if s, ok := ParseStatus(q.Status); ok {
			q.Status = string(s)
		} else {
			q.Status = "all"
		}
	}
	q.ScreeningType = strings.ToLower(strings.TrimSpace(q.ScreeningType))
	q.Search = strings.ToLower(strings.TrimSpace(q.Search))
	if q.Page < 1 {
		q.Page = 1
	}
	q.PageSize = pagination.NormalizeSize(q.PageSize)
	return q
}

func (q Query) cacheKey() string {
	return fmt.Sprintf("screenings|status=%s|type=%s|search=%s|page=%d|size=%d",
		strings.ToLower(q.Status), q.ScreeningType, q.Search, q.Page, q.PageSize)
}

func (q Query) filter() Filter {
	return Filter{Status: q.Status, ScreeningType: q.ScreeningType, Search: q.Search}
}

// ListResult is one page of records with pagination metadata and the
// per-status counts over the whole filtered set.
type ListResult struct {
	Items      []*ScreeningRecord `json:"items"`
	Pagination pagination.Page    `json:"pagination"`
	Counts     map[Status]int     `json:"counts"`
}

// QueryService serves cached, filtered, paginated reads over the record
// store. Regeneration invalidates the shared cache store wholesale.
type QueryService struct {
	records RecordRepository
	cache   *cache.Store
	logger  zerolog.Logger
}

func NewQueryService(records RecordRepository, cacheStore *cache.Store, logger zerolog.Logger) *QueryService {
	return &QueryService{records: records, cache: cacheStore, logger: logger}
}

// List returns the requested page. Cache hits return the stored result
// verbatim; callers must treat it as read-only.
func (s *QueryService) List(ctx context.Context, q Query) (*ListResult, error) {
	q = q.normalize()
	key := q.cacheKey()
	if v, ok := s.cache.Get(key); ok {
		metrics.RecordCacheLookup("hit")
		return v.(*ListResult), nil
	}
	metrics.RecordCacheLookup("miss")

	f := q.filter()
	counts, err := s.records.CountByStatus(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	// Counts cover the whole filtered set, so their sum is the total the
	// page selector clamps against.
	page := pagination.New(q.Page, q.PageSize, total)
	items, _, err := s.records.List(ctx, f, page.PageSize, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if items == nil {
		items = []*ScreeningRecord{}
	}

	result := &ListResult{Items: items, Pagination: page, Counts: counts}
	s.cache.Set(key, result)
	return result, nil
}
