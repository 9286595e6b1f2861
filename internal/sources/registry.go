// Package sources holds the immutable feed catalog.
package sources

import (
	"fmt"
	"sort"
	"strings"

	"NewsRelay/internal/domain"
)

// Registry keeps a mapping from source codes to catalog entries.
type Registry struct {
	byCode  map[string]domain.Source
	ordered []domain.Source
}

// NewRegistry validates and indexes the catalog. Codes must be unique and
// every entry needs a feed URL and a category.
func NewRegistry(list []domain.Source) (*Registry, error) {
	r := &Registry{byCode: make(map[string]domain.Source, len(list))}
	for _, src := range list {
		src.Code = strings.TrimSpace(src.Code)
		switch {
		case src.Code == "":
			return nil, fmt.Errorf("%w: source with empty code", domain.ErrConfig)
		case src.FeedURL == "":
			return nil, fmt.Errorf("%w: source %s has no feed url", domain.ErrConfig, src.Code)
		case src.Category == "":
			return nil, fmt.Errorf("%w: source %s has no category", domain.ErrConfig, src.Code)
		}
		if _, dup := r.byCode[src.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate source code %s", domain.ErrConfig, src.Code)
		}
		r.byCode[src.Code] = src
		r.ordered = append(r.ordered, src)
	}
	// Higher priority first; catalog order breaks ties.
	sort.SliceStable(r.ordered, func(i, j int) bool {
		return r.ordered[i].Priority > r.ordered[j].Priority
	})
	return r, nil
}

// Resolve returns a source by code.
func (r *Registry) Resolve(code string) (domain.Source, bool) {
	src, ok := r.byCode[code]
	return src, ok
}

// All returns the catalog ordered by priority.
func (r *Registry) All() []domain.Source {
	out := make([]domain.Source, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Categories lists the distinct categories referenced by the catalog, sorted.
func (r *Registry) Categories() []domain.Category {
	seen := map[domain.Category]struct{}{}
	var out []domain.Category
	for _, src := range r.ordered {
		if _, ok := seen[src.Category]; ok {
			continue
		}
		seen[src.Category] = struct{}{}
		out = append(out, src.Category)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len is the number of sources.
func (r *Registry) Len() int {
	return len(r.ordered)
}
