// Package partmap turns human-readable filter names into the numeric part
// ids the KM24 step endpoint expects, and renders platform-ready steps.
package partmap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"km24vejviser/internal/km24"
	"km24vejviser/internal/logger"
)

const (
	DefaultTTL  = 24 * time.Hour
	DefaultSize = 256
)

// ModuleSource fetches one module with its parts.
type ModuleSource interface {
	ModuleDetails(ctx context.Context, moduleID int, forceRefresh bool) km24.Response
}

// Part is one entry of a step's parts list.
type Part struct {
	ModulePartID int      `json:"modulePartId"`
	Values       []string `json:"values"`
}

type Options struct {
	TTL    time.Duration
	Size   int
	Logger *logger.Logger
}

// Mapper caches a name → part id table per module. Each table holds the
// exact part names and their lower-cased forms.
type Mapper struct {
	src   ModuleSource
	log   *logger.Logger
	cache *expirable.LRU[int, map[string]int]
	group singleflight.Group
}

func NewMapper(src ModuleSource, opts Options) *Mapper {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Mapper{
		src:   src,
		log:   opts.Logger.With("component", "partmap"),
		cache: expirable.NewLRU[int, map[string]int](opts.Size, nil, opts.TTL),
	}
}

// Mapping returns the name → part id table for a module.
func (m *Mapper) Mapping(ctx context.Context, moduleID int) (map[string]int, error) {
	if table, ok := m.cache.Get(moduleID); ok {
		return table, nil
	}
	v, err, _ := m.group.Do(fmt.Sprint(moduleID), func() (any, error) {
		res := m.src.ModuleDetails(ctx, moduleID, false)
		if !res.Success {
			if res.Err != nil {
				return nil, res.Err
			}
			return nil, errors.New(res.Error)
		}
		var mod km24.Module
		if err := res.Decode(&mod); err != nil {
			return nil, err
		}
		table := make(map[string]int, 2*len(mod.Parts))
		for _, p := range mod.Parts {
			if p.ID <= 0 || p.Name == "" {
				continue
			}
			table[p.Name] = int(p.ID)
			table[strings.ToLower(p.Name)] = int(p.ID)
		}
		m.cache.Add(moduleID, table)
		m.log.Debug("part mapping cached", "module_id", moduleID, "parts", len(mod.Parts))
		return table, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch module %d: %w", moduleID, err)
	}
	return v.(map[string]int), nil
}

func lookup(table map[string]int, name string) (int, bool) {
	if id, ok := table[name]; ok {
		return id, true
	}
	id, ok := table[strings.ToLower(name)]
	return id, ok
}

// MapFilters converts filters into parts. Filters with no values are
// skipped; unknown names produce one warning each. When the module cannot
// be fetched the result is empty with a single warning. Parts are ordered
// by filter name.
func (m *Mapper) MapFilters(ctx context.Context, moduleID int, filters map[string][]string) ([]Part, []string) {
	parts := []Part{}
	warnings := []string{}
	if len(filters) == 0 {
		return parts, warnings
	}
	table, err := m.Mapping(ctx, moduleID)
	if err != nil {
		m.log.Warn("cannot map filters", "module_id", moduleID, "error", err)
		return parts, append(warnings, fmt.Sprintf("Could not fetch module %d parts: %v", moduleID, err))
	}
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := filters[name]
		if len(values) == 0 {
			continue
		}
		id, ok := lookup(table, name)
		if !ok {
			w := fmt.Sprintf("Unknown filter '%s' for module %d", name, moduleID)
			m.log.Warn(w)
			warnings = append(warnings, w)
			continue
		}
		parts = append(parts, Part{ModulePartID: id, Values: append([]string(nil), values...)})
	}
	return parts, warnings
}

// ValidateFilterNames reports for each name whether the module has a part
// with that name. All names are invalid when the module cannot be fetched.
func (m *Mapper) ValidateFilterNames(ctx context.Context, moduleID int, names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	table, err := m.Mapping(ctx, moduleID)
	for _, name := range names {
		if err != nil {
			out[name] = false
			continue
		}
		_, out[name] = lookup(table, name)
	}
	return out
}

// PartID resolves a single filter name.
func (m *Mapper) PartID(ctx context.Context, moduleID int, name string) (int, bool) {
	table, err := m.Mapping(ctx, moduleID)
	if err != nil {
		return 0, false
	}
	return lookup(table, name)
}

// Purge drops every cached table.
func (m *Mapper) Purge() { m.cache.Purge() }
