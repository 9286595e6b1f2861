// Package router maps sources to destination channels.
package router

import (
	"fmt"
	"sort"
	"strings"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/sources"
)

// Router is a pure lookup over a static source to category table.
// Unknown sources fall back to the default category.
type Router struct {
	table    map[string]domain.Category
	channels map[domain.Category]string
	fallback domain.Category
}

// New builds a router for every source in reg. Each category referenced by
// the catalog, and the fallback category, must have a channel id; a missing
// mapping is a domain.ErrConfig.
func New(reg *sources.Registry, channels map[domain.Category]string, fallback domain.Category) (*Router, error) {
	if fallback == "" {
		return nil, fmt.Errorf("%w: no default channel category", domain.ErrConfig)
	}
	r := &Router{
		table:    map[string]domain.Category{},
		channels: map[domain.Category]string{},
		fallback: fallback,
	}
	for cat, id := range channels {
		if id = strings.TrimSpace(id); id != "" {
			r.channels[cat] = id
		}
	}

	var missing []string
	if _, ok := r.channels[fallback]; !ok {
		missing = append(missing, string(fallback))
	}
	if reg != nil {
		for _, src := range reg.All() {
			r.table[src.Code] = src.Category
		}
		for _, cat := range reg.Categories() {
			if _, ok := r.channels[cat]; !ok && cat != fallback {
				missing = append(missing, string(cat))
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: no channel id for categories %s", domain.ErrConfig, strings.Join(missing, ", "))
	}
	return r, nil
}

// Route returns the category for a source code. It never fails.
func (r *Router) Route(sourceCode string) domain.Category {
	if cat, ok := r.table[sourceCode]; ok {
		return cat
	}
	return r.fallback
}

// ChatID returns the destination channel id for a category.
func (r *Router) ChatID(cat domain.Category) string {
	if id, ok := r.channels[cat]; ok {
		return id
	}
	return r.channels[r.fallback]
}

// Bind routes an accepted item to its destination.
func (r *Router) Bind(item domain.CandidateItem, src domain.Source) domain.RoutedItem {
	cat := r.Route(item.SourceCode)
	return domain.RoutedItem{
		Item:     item,
		Source:   src,
		Category: cat,
		ChatID:   r.ChatID(cat),
	}
}
