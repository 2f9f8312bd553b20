package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"km24vejviser/internal/km24"
	"km24vejviser/internal/logger"
)

// DefaultTTL is how long an in-process table is trusted before reloading.
const DefaultTTL = 24 * time.Hour

const (
	tableMunicipalities = "municipalities"
	tableBranchCodes    = "branch_codes"
	tableRegions        = "regions"
	tableCourtDistricts = "court_districts"
	tableModules        = "modules"
)

//go:embed data.yaml
var dataYAML []byte

type bucket struct {
	Key      string   `yaml:"key"`
	Keywords []string `yaml:"keywords"`
	Media    []string `yaml:"media"`
}

type dataFile struct {
	Fallback struct {
		Municipalities []km24.Municipality  `yaml:"municipalities"`
		BranchCodes    []km24.BranchCode    `yaml:"branch_codes"`
		Regions        []km24.Region        `yaml:"regions"`
		CourtDistricts []km24.CourtDistrict `yaml:"court_districts"`
	} `yaml:"fallback"`
	IndustryKeywords     []bucket `yaml:"industry_keywords"`
	MunicipalityKeywords []bucket `yaml:"municipality_keywords"`
	RegionKeywords       []bucket `yaml:"region_keywords"`
	LocalMedia           []bucket `yaml:"local_media"`
}

var data = func() dataFile {
	var df dataFile
	if err := yaml.Unmarshal(dataYAML, &df); err != nil {
		panic(fmt.Sprintf("catalog: embedded data: %v", err))
	}
	return df
}()

// Gateway is the slice of the KM24 client the catalog depends on.
type Gateway interface {
	ModulesBasic(ctx context.Context, forceRefresh bool) km24.Response
	ModuleDetails(ctx context.Context, moduleID int, forceRefresh bool) km24.Response
	Municipalities(ctx context.Context, forceRefresh bool) km24.Response
	BranchCodes(ctx context.Context, forceRefresh bool) km24.Response
	Regions(ctx context.Context, forceRefresh bool) km24.Response
	CourtDistricts(ctx context.Context, forceRefresh bool) km24.Response
	GenericValues(ctx context.Context, partID int, forceRefresh bool) km24.Response
	WebSources(ctx context.Context, moduleID int, forceRefresh bool) km24.Response
}

type Options struct {
	TTL       time.Duration
	CacheSize int
	Logger    *logger.Logger
	Now       func() time.Time
}

type timed[T any] struct {
	items     []T
	fetchedAt time.Time
}

// Catalog owns the reference tables (municipalities, branch codes, regions,
// court districts), the module index and the per-part value lists. Other
// components read through its accessors only.
type Catalog struct {
	gw  Gateway
	log *logger.Logger
	ttl time.Duration
	now func() time.Time

	mu              sync.RWMutex
	municipalities  []km24.Municipality
	branchCodes     []km24.BranchCode
	regions         []km24.Region
	courts          []km24.CourtDistrict
	modules         []km24.Module
	moduleIDByTitle map[string]int
	partsByModule   map[int][]km24.Part
	loadedAt        map[string]time.Time
	fallback        map[string]bool

	genericValues *lru.Cache[int, timed[km24.GenericValue]]
	webSources    *lru.Cache[int, timed[km24.WebSource]]
}

func New(gw Gateway, opts Options) *Catalog {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	gv, _ := lru.New[int, timed[km24.GenericValue]](opts.CacheSize)
	ws, _ := lru.New[int, timed[km24.WebSource]](opts.CacheSize)
	return &Catalog{
		gw:              gw,
		log:             opts.Logger.With("component", "catalog"),
		ttl:             opts.TTL,
		now:             opts.Now,
		moduleIDByTitle: make(map[string]int),
		partsByModule:   make(map[int][]km24.Part),
		loadedAt:        make(map[string]time.Time),
		fallback:        make(map[string]bool),
		genericValues:   gv,
		webSources:      ws,
	}
}

type Summary struct {
	Municipalities int      `json:"municipalities"`
	BranchCodes    int      `json:"branch_codes"`
	Regions        int      `json:"regions"`
	CourtDistricts int      `json:"court_districts"`
	Modules        int      `json:"modules"`
	Loaded         int      `json:"loaded"`
	Total          int      `json:"total"`
	Fallback       []string `json:"fallback,omitempty"`
	CacheAge       string   `json:"cache_age,omitempty"`
}

// LoadAll loads every table concurrently. A failing table does not cancel
// its siblings; it is logged, counted and replaced by fallback data where
// fallback data exists.
func (c *Catalog) LoadAll(ctx context.Context, forceRefresh bool) Summary {
	loaders := []func(context.Context, bool) error{
		c.loadMunicipalities,
		c.loadBranchCodes,
		c.loadRegions,
		c.loadCourtDistricts,
		c.loadModules,
	}
	var failed atomic.Int32
	var g errgroup.Group
	for _, load := range loaders {
		g.Go(func() error {
			if err := load(ctx, forceRefresh); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	s := c.Status()
	s.Total = len(loaders)
	s.Loaded = len(loaders) - int(failed.Load())
	c.log.Info("filter catalog loaded", "loaded", s.Loaded, "total", s.Total, "fallback", s.Fallback)
	return s
}

// Status reports table sizes without loading anything.
func (c *Catalog) Status() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Summary{
		Municipalities: len(c.municipalities),
		BranchCodes:    len(c.branchCodes),
		Regions:        len(c.regions),
		CourtDistricts: len(c.courts),
		Modules:        len(c.moduleIDByTitle),
		Total:          5,
	}
	var oldest time.Time
	for key, at := range c.loadedAt {
		if c.fallback[key] {
			s.Fallback = append(s.Fallback, key)
		} else {
			s.Loaded++
		}
		if oldest.IsZero() || at.Before(oldest) {
			oldest = at
		}
	}
	sort.Strings(s.Fallback)
	if !oldest.IsZero() {
		s.CacheAge = c.now().Sub(oldest).Round(time.Second).String()
	}
	return s
}

func (c *Catalog) valid(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	at, ok := c.loadedAt[key]
	return ok && c.now().Sub(at) < c.ttl
}

func (c *Catalog) mark(key string, fromFallback bool) {
	c.mu.Lock()
	c.loadedAt[key] = c.now()
	c.fallback[key] = fromFallback
	c.mu.Unlock()
}

func responseErr(res km24.Response) error {
	if res.Err != nil {
		return res.Err
	}
	if res.Error != "" {
		return errors.New(res.Error)
	}
	return errors.New("empty response")
}

// loadTable fetches one list endpoint, decodes its items and hands them to
// apply. On failure the fallback rows are applied instead, when there are any.
func loadTable[T any](ctx context.Context, c *Catalog, key string, force bool,
	fetch func(context.Context, bool) km24.Response, apply func([]T), fallback []T) error {
	if !force && c.valid(key) {
		return nil
	}
	res := fetch(ctx, force)
	var err error
	if res.Success {
		var items []T
		if err = res.Items(&items); err == nil {
			apply(items)
			c.mark(key, false)
			c.log.Debug("catalog table loaded", "table", key, "count", len(items), "cached", res.Cached)
			return nil
		}
	} else {
		err = responseErr(res)
	}
	if fallback == nil {
		c.log.Warn("catalog table unavailable", "table", key, "error", err)
		return fmt.Errorf("load %s: %w", key, err)
	}
	c.log.Warn("catalog table unavailable, using fallback data", "table", key, "error", err)
	apply(append([]T(nil), fallback...))
	c.mark(key, true)
	return fmt.Errorf("load %s: %w", key, err)
}

func (c *Catalog) loadMunicipalities(ctx context.Context, force bool) error {
	return loadTable(ctx, c, tableMunicipalities, force, c.gw.Municipalities, func(items []km24.Municipality) {
		for i := range items {
			if items[i].Region == "" {
				items[i].Region = "Ukendt"
			}
		}
		c.mu.Lock()
		c.municipalities = items
		c.mu.Unlock()
	}, data.Fallback.Municipalities)
}

func (c *Catalog) loadBranchCodes(ctx context.Context, force bool) error {
	return loadTable(ctx, c, tableBranchCodes, force, c.gw.BranchCodes, func(items []km24.BranchCode) {
		for i := range items {
			if items[i].Category == "" {
				items[i].Category = "Ukendt"
			}
			if items[i].Level == 0 {
				items[i].Level = 1
			}
		}
		c.mu.Lock()
		c.branchCodes = items
		c.mu.Unlock()
	}, data.Fallback.BranchCodes)
}

func (c *Catalog) loadRegions(ctx context.Context, force bool) error {
	return loadTable(ctx, c, tableRegions, force, c.gw.Regions, func(items []km24.Region) {
		c.mu.Lock()
		c.regions = items
		c.mu.Unlock()
	}, data.Fallback.Regions)
}

func (c *Catalog) loadCourtDistricts(ctx context.Context, force bool) error {
	return loadTable(ctx, c, tableCourtDistricts, force, c.gw.CourtDistricts, func(items []km24.CourtDistrict) {
		c.mu.Lock()
		c.courts = items
		c.mu.Unlock()
	}, data.Fallback.CourtDistricts)
}

func (c *Catalog) loadModules(ctx context.Context, force bool) error {
	return loadTable(ctx, c, tableModules, force, c.gw.ModulesBasic, func(items []km24.Module) {
		byTitle := make(map[string]int, len(items))
		mods := make([]km24.Module, 0, len(items))
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, m := range items {
			if m.ID <= 0 {
				continue
			}
			mods = append(mods, m)
			if t := strings.TrimSpace(m.Title); t != "" {
				byTitle[t] = int(m.ID)
			}
			if len(m.Parts) > 0 {
				c.partsByModule[int(m.ID)] = m.Parts
			}
		}
		c.modules = mods
		c.moduleIDByTitle = byTitle
	}, nil)
}

// EnsureModules loads the module index unless it is already fresh.
func (c *Catalog) EnsureModules(ctx context.Context) error {
	return c.loadModules(ctx, false)
}

func (c *Catalog) Municipalities() []km24.Municipality {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]km24.Municipality(nil), c.municipalities...)
}

func (c *Catalog) BranchCodes() []km24.BranchCode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]km24.BranchCode(nil), c.branchCodes...)
}

func (c *Catalog) Regions() []km24.Region {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]km24.Region(nil), c.regions...)
}

func (c *Catalog) CourtDistricts() []km24.CourtDistrict {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]km24.CourtDistrict(nil), c.courts...)
}

// Modules returns the module index in API order.
func (c *Catalog) Modules() []km24.Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]km24.Module(nil), c.modules...)
}

// ModuleID resolves a module title, exact match first, then the first
// case-insensitive match in API order.
func (c *Catalog) ModuleID(name string) (int, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.moduleIDByTitle[name]; ok {
		return id, true
	}
	for _, m := range c.modules {
		if strings.EqualFold(strings.TrimSpace(m.Title), name) {
			return int(m.ID), true
		}
	}
	return 0, false
}

// Module resolves like ModuleID and returns the full module.
func (c *Catalog) Module(name string) (km24.Module, bool) {
	id, ok := c.ModuleID(name)
	if !ok {
		return km24.Module{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.modules {
		if int(m.ID) == id {
			if parts, ok := c.partsByModule[id]; ok && len(m.Parts) == 0 {
				m.Parts = parts
			}
			return m, true
		}
	}
	return km24.Module{}, false
}

// ModuleParts returns the parts of a module, fetching module details when
// the index does not carry them yet.
func (c *Catalog) ModuleParts(ctx context.Context, moduleID int, forceRefresh bool) ([]km24.Part, error) {
	if !forceRefresh {
		c.mu.RLock()
		parts, ok := c.partsByModule[moduleID]
		c.mu.RUnlock()
		if ok {
			return parts, nil
		}
	}
	res := c.gw.ModuleDetails(ctx, moduleID, forceRefresh)
	if !res.Success {
		return nil, fmt.Errorf("module %d: %w", moduleID, responseErr(res))
	}
	var m km24.Module
	if err := res.Decode(&m); err != nil {
		return nil, fmt.Errorf("module %d: %w", moduleID, err)
	}
	c.mu.Lock()
	c.partsByModule[moduleID] = m.Parts
	c.mu.Unlock()
	return m.Parts, nil
}

type ModuleFilterStatus struct {
	ModuleID            int `json:"module_id"`
	PartsLoaded         int `json:"parts_loaded"`
	GenericValuesLoaded int `json:"generic_values_loaded"`
	WebSourcesLoaded    int `json:"web_sources_loaded"`
}

// LoadModuleFilters warms the generic-value and web-source caches for one
// module. Individual list failures are logged and tolerated.
func (c *Catalog) LoadModuleFilters(ctx context.Context, moduleID int, forceRefresh bool) (ModuleFilterStatus, error) {
	parts, err := c.ModuleParts(ctx, moduleID, forceRefresh)
	if err != nil {
		return ModuleFilterStatus{ModuleID: moduleID}, err
	}
	st := ModuleFilterStatus{ModuleID: moduleID, PartsLoaded: len(parts)}
	var g errgroup.Group
	webQueued := false
	for _, p := range parts {
		switch p.Part {
		case km24.PartGenericValue:
			st.GenericValuesLoaded++
			partID := int(p.ID)
			g.Go(func() error {
				_, _ = c.GenericValues(ctx, partID, forceRefresh)
				return nil
			})
		case km24.PartWebSource:
			st.WebSourcesLoaded++
			if !webQueued {
				webQueued = true
				g.Go(func() error {
					_, _ = c.WebSources(ctx, moduleID, forceRefresh)
					return nil
				})
			}
		}
	}
	_ = g.Wait()
	return st, nil
}

func (c *Catalog) GenericValues(ctx context.Context, partID int, forceRefresh bool) ([]km24.GenericValue, error) {
	if !forceRefresh {
		if e, ok := c.genericValues.Get(partID); ok && c.now().Sub(e.fetchedAt) < c.ttl {
			return e.items, nil
		}
	}
	res := c.gw.GenericValues(ctx, partID, forceRefresh)
	if !res.Success {
		c.log.Warn("generic values unavailable", "part_id", partID, "error", res.Error)
		return nil, fmt.Errorf("generic values %d: %w", partID, responseErr(res))
	}
	var items []km24.GenericValue
	if err := res.Items(&items); err != nil {
		return nil, fmt.Errorf("generic values %d: %w", partID, err)
	}
	c.genericValues.Add(partID, timed[km24.GenericValue]{items: items, fetchedAt: c.now()})
	return items, nil
}

// CachedGenericValues never touches the network.
func (c *Catalog) CachedGenericValues(partID int) []km24.GenericValue {
	e, ok := c.genericValues.Peek(partID)
	if !ok {
		return nil
	}
	return e.items
}

func (c *Catalog) WebSources(ctx context.Context, moduleID int, forceRefresh bool) ([]km24.WebSource, error) {
	if !forceRefresh {
		if e, ok := c.webSources.Get(moduleID); ok && c.now().Sub(e.fetchedAt) < c.ttl {
			return e.items, nil
		}
	}
	res := c.gw.WebSources(ctx, moduleID, forceRefresh)
	if !res.Success {
		c.log.Warn("web sources unavailable", "module_id", moduleID, "error", res.Error)
		return nil, fmt.Errorf("web sources %d: %w", moduleID, responseErr(res))
	}
	var items []km24.WebSource
	if err := res.Items(&items); err != nil {
		return nil, fmt.Errorf("web sources %d: %w", moduleID, err)
	}
	c.webSources.Add(moduleID, timed[km24.WebSource]{items: items, fetchedAt: c.now()})
	return items, nil
}

func (c *Catalog) CachedWebSources(moduleID int) []km24.WebSource {
	e, ok := c.webSources.Peek(moduleID)
	if !ok {
		return nil
	}
	return e.items
}
