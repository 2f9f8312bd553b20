package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"km24vejviser/internal/km24"
	"km24vejviser/internal/logger"
)

// DefaultTTL bounds how long profiles built from the live module list are reused.
const DefaultTTL = 24 * time.Hour

// Mapping links one extracted term to one module part.
type Mapping struct {
	ModuleID        int      `json:"module_id"`
	PartID          int      `json:"part_id"`
	PartName        string   `json:"part_name"`
	PartType        string   `json:"part_type"`
	SuggestedValues []string `json:"suggested_values"`
	Confidence      float64  `json:"confidence"`
	Evidence        string   `json:"evidence"`
	Term            string   `json:"term"`
}

type Profile struct {
	ModuleID        int       `json:"module_id"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	LongDescription string    `json:"long_description"`
	Terms           []string  `json:"terms"`
	Mappings        []Mapping `json:"mappings"`
}

// ModuleSource is the part of the KM24 gateway the knowledge base reads.
type ModuleSource interface {
	ModulesBasic(ctx context.Context, forceRefresh bool) km24.Response
}

type Options struct {
	Snapshot  string
	TTL       time.Duration
	Extractor *Extractor
	Logger    *logger.Logger
	Now       func() time.Time
}

type LoadStatus struct {
	Success  bool   `json:"success"`
	Profiles int    `json:"profiles"`
	Source   string `json:"source,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Base holds one profile per module. Profiles are rebuilt wholesale, never
// patched.
type Base struct {
	src      ModuleSource
	snapshot string
	ttl      time.Duration
	ext      *Extractor
	log      *logger.Logger
	now      func() time.Time

	mu       sync.RWMutex
	byID     map[int]*Profile
	byTitle  map[string]*Profile
	order    []int
	loadedAt time.Time
}

func NewBase(src ModuleSource, opts Options) *Base {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Extractor == nil {
		opts.Extractor = Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Base{
		src:      src,
		snapshot: strings.TrimSpace(opts.Snapshot),
		ttl:      opts.TTL,
		ext:      opts.Extractor,
		log:      opts.Logger.With("component", "knowledge"),
		now:      opts.Now,
		byID:     make(map[int]*Profile),
		byTitle:  make(map[string]*Profile),
	}
}

// Load builds profiles from the gateway module list. When the gateway fails
// and a snapshot file is configured, the snapshot is used instead.
func (b *Base) Load(ctx context.Context, forceRefresh bool) LoadStatus {
	b.mu.RLock()
	fresh := !b.loadedAt.IsZero() && b.now().Sub(b.loadedAt) < b.ttl && len(b.byID) > 0
	count := len(b.byID)
	b.mu.RUnlock()
	if fresh && !forceRefresh {
		return LoadStatus{Success: true, Profiles: count, Source: "memory"}
	}

	if b.src != nil {
		res := b.src.ModulesBasic(ctx, forceRefresh)
		if res.Success {
			var mods []km24.Module
			err := res.Items(&mods)
			if err == nil {
				n := b.rebuild(mods)
				b.log.Info("knowledge base built", "profiles", n, "cached", res.Cached)
				return LoadStatus{Success: true, Profiles: n, Source: "api"}
			}
			b.log.Warn("modules/basic payload unreadable", "error", err)
		} else {
			b.log.Warn("modules/basic unavailable", "error", res.Error)
		}
		if b.snapshot == "" {
			return LoadStatus{Success: false, Error: res.Error}
		}
	}
	if b.snapshot == "" {
		return LoadStatus{Success: false, Error: "no module source configured"}
	}
	n, err := b.LoadSnapshot(b.snapshot)
	if err != nil {
		return LoadStatus{Success: false, Error: err.Error()}
	}
	return LoadStatus{Success: true, Profiles: n, Source: "snapshot"}
}

// LoadSnapshot builds profiles from a modules/basic dump on disk. Both the
// raw API body and the cache envelope {"cached_at", "data"} are accepted.
func (b *Base) LoadSnapshot(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read module snapshot: %w", err)
	}
	mods, err := decodeSnapshot(raw)
	if err != nil {
		return 0, fmt.Errorf("decode module snapshot %s: %w", path, err)
	}
	n := b.rebuild(mods)
	b.log.Info("knowledge base built from snapshot", "profiles", n, "path", path)
	return n, nil
}

func decodeSnapshot(raw []byte) ([]km24.Module, error) {
	var env struct {
		Data  json.RawMessage `json:"data"`
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	body := raw
	if len(env.Data) > 0 && len(env.Items) == 0 {
		body = env.Data
	}
	var mods []km24.Module
	if err := (km24.Response{Success: true, Data: body}).Items(&mods); err != nil {
		return nil, err
	}
	return mods, nil
}

func (b *Base) rebuild(mods []km24.Module) int {
	byID := make(map[int]*Profile, len(mods))
	byTitle := make(map[string]*Profile, len(mods))
	order := make([]int, 0, len(mods))
	for _, m := range mods {
		if m.ID <= 0 {
			continue
		}
		id := int(m.ID)
		title := strings.TrimSpace(m.Title)
		slug := strings.TrimSpace(m.Slug)
		if slug == "" && title != "" {
			slug = strings.ReplaceAll(strings.ToLower(title), " ", "-")
		}
		terms := b.ext.ExtractTerms(m.LongDescription)
		p := &Profile{
			ModuleID:        id,
			Title:           title,
			Slug:            slug,
			LongDescription: m.LongDescription,
			Terms:           SortedTerms(terms),
			Mappings:        b.ext.MapTermsToParts(terms, m.Parts, id),
		}
		if _, dup := byID[id]; !dup {
			order = append(order, id)
		}
		byID[id] = p
		if title != "" {
			byTitle[strings.ToLower(title)] = p
		}
	}

	b.mu.Lock()
	b.byID, b.byTitle, b.order = byID, byTitle, order
	b.loadedAt = b.now()
	b.mu.Unlock()
	return len(order)
}

func (b *Base) ProfileByID(id int) (Profile, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.byID[id]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// ProfileByTitle is case-insensitive.
func (b *Base) ProfileByTitle(title string) (Profile, bool) {
	if strings.TrimSpace(title) == "" {
		return Profile{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.byTitle[strings.ToLower(strings.TrimSpace(title))]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// Profiles returns every profile in module list order.
func (b *Base) Profiles() []Profile {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Profile, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.byID[id])
	}
	return out
}

// GoalMatch is a profile mapping whose term also occurs in the goal.
type GoalMatch struct {
	ModuleTitle string
	Mapping     Mapping
}

// MatchGoal returns mappings whose term is detected in both the module
// description and the goal. modules limits the search to those titles
// (case-insensitive); nil or empty means every module.
func (b *Base) MatchGoal(goal string, modules []string) []GoalMatch {
	goalTerms := b.ext.ExtractTerms(goal)
	if len(goalTerms) == 0 {
		return nil
	}
	var selected map[string]bool
	if len(modules) > 0 {
		selected = make(map[string]bool, len(modules))
		for _, m := range modules {
			selected[strings.ToLower(strings.TrimSpace(m))] = true
		}
	}
	var out []GoalMatch
	for _, p := range b.Profiles() {
		if selected != nil && !selected[strings.ToLower(p.Title)] {
			continue
		}
		for _, m := range p.Mappings {
			if _, ok := goalTerms[m.Term]; ok {
				out = append(out, GoalMatch{ModuleTitle: p.Title, Mapping: m})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Mapping.Confidence > out[j].Mapping.Confidence })
	return out
}
