package modules

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"km24vejviser/internal/km24"
	"km24vejviser/internal/logger"
)

const (
	// DefaultLimit caps the number of alternatives returned per name.
	DefaultLimit = 3
	// MinSimilarity is the floor below which a module is not suggested.
	MinSimilarity = 0.3
	substringBonus = 0.2
)

//go:embed tables.yaml
var tablesYAML []byte

type reasonRule struct {
	Query  string `yaml:"query"`
	Title  string `yaml:"title"`
	Reason string `yaml:"reason"`
}

type exampleSet struct {
	Key      string   `yaml:"key"`
	Examples []string `yaml:"examples"`
}

type tableFile struct {
	Reasons         []reasonRule      `yaml:"reasons"`
	Stopwords       []string          `yaml:"stopwords"`
	SearchExamples  []exampleSet      `yaml:"search_examples"`
	GenericExamples []string          `yaml:"generic_examples"`
	PartTips        map[string]string `yaml:"part_tips"`
	Workflows       []Workflow        `yaml:"workflows"`
}

var tables = func() tableFile {
	var t tableFile
	if err := yaml.Unmarshal(tablesYAML, &t); err != nil {
		panic(fmt.Sprintf("modules: embedded tables: %v", err))
	}
	return t
}()

var stopwords = func() map[string]bool {
	m := make(map[string]bool, len(tables.Stopwords))
	for _, w := range tables.Stopwords {
		m[w] = true
	}
	return m
}()

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// ModuleSource lists the platform's modules.
type ModuleSource interface {
	ModulesBasic(ctx context.Context, forceRefresh bool) km24.Response
}

// Suggestion is an existing module proposed in place of an unknown name.
type Suggestion struct {
	ModuleTitle string  `json:"module_title"`
	ModuleSlug  string  `json:"module_slug"`
	Description string  `json:"description"`
	MatchReason string  `json:"match_reason"`
	Confidence  float64 `json:"confidence"`
}

// Result partitions the checked names. Suggestions are keyed by invalid name.
type Result struct {
	Valid        []string                `json:"valid_modules"`
	Invalid      []string                `json:"invalid_modules"`
	Suggestions  map[string][]Suggestion `json:"suggestions"`
	TotalChecked int                     `json:"total_checked"`
	Error        string                  `json:"error,omitempty"`
}

type Validator struct {
	src ModuleSource
	log *logger.Logger
}

func NewValidator(src ModuleSource, log *logger.Logger) *Validator {
	if log == nil {
		log = logger.Nop()
	}
	return &Validator{src: src, log: log.With("component", "module_validator")}
}

func (v *Validator) load(ctx context.Context) ([]km24.Module, error) {
	if v.src == nil {
		return nil, errors.New("no module source")
	}
	res := v.src.ModulesBasic(ctx, false)
	if !res.Success {
		if res.Err != nil {
			return nil, res.Err
		}
		return nil, errors.New(res.Error)
	}
	var mods []km24.Module
	if err := res.Items(&mods); err != nil {
		return nil, err
	}
	v.log.Debug("modules loaded", "count", len(mods))
	return mods, nil
}

// ValidateModules checks each name against module titles and slugs. Empty
// names are skipped. When the module list cannot be loaded every name is
// reported invalid and Error is set.
func (v *Validator) ValidateModules(ctx context.Context, names []string) Result {
	res := Result{
		Valid:        []string{},
		Invalid:      []string{},
		Suggestions:  map[string][]Suggestion{},
		TotalChecked: len(names),
	}
	mods, err := v.load(ctx)
	if err != nil {
		v.log.Warn("module validation without module list", "error", err)
		res.Invalid = append(res.Invalid, names...)
		res.Error = err.Error()
		return res
	}
	known := make(map[string]bool, 2*len(mods))
	for _, m := range mods {
		known[m.Title] = true
		known[m.Slug] = true
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		if known[name] {
			res.Valid = append(res.Valid, name)
			continue
		}
		res.Invalid = append(res.Invalid, name)
		res.Suggestions[name] = bestMatches(mods, name, DefaultLimit)
	}
	return res
}

// Suggest ranks modules by similarity to name. An exact title or slug match
// is returned alone with confidence 1.
func (v *Validator) Suggest(ctx context.Context, name string, limit int) ([]Suggestion, error) {
	mods, err := v.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range mods {
		if m.Title == name || m.Slug == name {
			return []Suggestion{{
				ModuleTitle: m.Title,
				ModuleSlug:  m.Slug,
				Description: m.Description,
				MatchReason: matchReason(name, m.Title, m.Slug, 1),
				Confidence:  1,
			}}, nil
		}
	}
	return bestMatches(mods, name, limit), nil
}

// SuggestForGoal extracts keywords from a free-text goal and returns the
// best module per slug across all keywords.
func (v *Validator) SuggestForGoal(ctx context.Context, goal string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	mods, err := v.load(ctx)
	if err != nil {
		return nil, err
	}
	best := map[string]Suggestion{}
	var order []string
	for _, kw := range GoalKeywords(goal) {
		for _, s := range bestMatches(mods, kw, 2) {
			prev, seen := best[s.ModuleSlug]
			if !seen {
				order = append(order, s.ModuleSlug)
				best[s.ModuleSlug] = s
			} else if s.Confidence > prev.Confidence {
				best[s.ModuleSlug] = s
			}
		}
	}
	out := make([]Suggestion, 0, len(order))
	for _, slug := range order {
		out = append(out, best[slug])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GoalKeywords returns the distinct words of goal that are longer than two
// letters and not stopwords, in first-seen order.
func GoalKeywords(goal string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range wordRe.FindAllString(strings.ToLower(goal), -1) {
		if stopwords[w] || len([]rune(w)) <= 2 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func bestMatches(mods []km24.Module, query string, limit int) []Suggestion {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var out []Suggestion
	for _, m := range mods {
		sim := max(Similarity(query, m.Title), Similarity(query, m.Slug))
		if sim <= MinSimilarity {
			continue
		}
		out = append(out, Suggestion{
			ModuleTitle: m.Title,
			ModuleSlug:  m.Slug,
			Description: m.Description,
			MatchReason: matchReason(query, m.Title, m.Slug, sim),
			Confidence:  sim,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Similarity compares two names case-insensitively. It is the sequence
// matcher ratio plus a bonus when one string contains the other, capped at 1.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	sim := difflib.NewMatcher(runes(a), runes(b)).Ratio()
	if strings.Contains(a, b) || strings.Contains(b, a) {
		sim += substringBonus
	}
	return min(sim, 1)
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func matchReason(query, title, slug string, sim float64) string {
	q := strings.ToLower(query)
	t := strings.ToLower(title)
	s := strings.ToLower(slug)
	for _, r := range tables.Reasons {
		if strings.Contains(q, r.Query) && strings.Contains(t, r.Title) {
			return r.Reason
		}
	}
	switch {
	case sim >= 0.9:
		return "Almost exact match with module name"
	case sim >= 0.7:
		return "High similarity with module name and functionality"
	case strings.Contains(t, q) || strings.Contains(s, q):
		return fmt.Sprintf("Module name contains search term '%s'", query)
	case strings.Contains(q, t) || strings.Contains(q, s):
		return fmt.Sprintf("Search term contains module name '%s'", title)
	default:
		return "Partial similarity with module name and potentially relevant functionality"
	}
}

// SearchExamples returns up to five example search strings for a module.
func SearchExamples(moduleTitle string) []string {
	t := strings.ToLower(moduleTitle)
	var out []string
	for _, set := range tables.SearchExamples {
		if strings.Contains(t, set.Key) {
			out = append(out, set.Examples...)
		}
	}
	if len(out) == 0 {
		out = append(out, tables.GenericExamples...)
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
