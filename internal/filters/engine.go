package filters

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"km24vejviser/internal/catalog"
	"km24vejviser/internal/km24"
	"km24vejviser/internal/knowledge"
	"km24vejviser/internal/logger"
)

// Score bands. Scores only rank suggestions against each other.
const (
	ScoreMunicipality = 0.9
	ScoreIndustry     = 0.85
	ScoreRegion       = 0.8
	ScoreKnowledge    = 0.95
	ScoreLocalMedia   = 0.92
	ScoreAsbestos     = 0.94
	ScoreLiveValues   = 0.96
)

// Recommendation is a single filter suggestion. It is computed per call and
// never cached.
type Recommendation struct {
	FilterType     string   `json:"filter_type"`
	Values         []string `json:"values"`
	RelevanceScore float64  `json:"relevance_score"`
	Reasoning      string   `json:"reasoning"`
	ModuleID       int      `json:"module_id,omitempty"`
	ModulePartID   int      `json:"module_part_id,omitempty"`
	PartName       string   `json:"part_name,omitempty"`
}

// Catalog is what the engine reads from the filter catalog.
type Catalog interface {
	RelevantMunicipalities(goal string) []catalog.Group
	RelevantBranchCodes(goal string) []catalog.Group
	ModuleID(name string) (int, bool)
	ModuleParts(ctx context.Context, moduleID int, forceRefresh bool) ([]km24.Part, error)
	LoadModuleFilters(ctx context.Context, moduleID int, forceRefresh bool) (catalog.ModuleFilterStatus, error)
	GenericValues(ctx context.Context, partID int, forceRefresh bool) ([]km24.GenericValue, error)
	CachedWebSources(moduleID int) []km24.WebSource
}

// Knowledge supplies term matches between module descriptions and a goal.
type Knowledge interface {
	MatchGoal(goal string, modules []string) []knowledge.GoalMatch
}

type Engine struct {
	cat Catalog
	kb  Knowledge
	ext *knowledge.Extractor
	log *logger.Logger
}

func NewEngine(cat Catalog, kb Knowledge, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{cat: cat, kb: kb, ext: knowledge.Default(), log: log.With("component", "filters")}
}

// Recommend combines static keyword buckets, knowledge-base term matches and
// a few hard-wired cases. It does no network I/O.
func (e *Engine) Recommend(goal string, modules []string) []Recommendation {
	goalLower := strings.ToLower(goal)
	var recs []Recommendation

	if e.cat != nil {
		for _, g := range e.cat.RelevantMunicipalities(goalLower) {
			recs = append(recs, Recommendation{
				FilterType:     "municipality",
				Values:         g.Values,
				RelevanceScore: ScoreMunicipality,
				Reasoning:      fmt.Sprintf("Relevant municipalities in the %s area based on the goal", g.Key),
			})
		}
		for _, g := range e.cat.RelevantBranchCodes(goalLower) {
			recs = append(recs, Recommendation{
				FilterType:     "industry",
				Values:         g.Values,
				RelevanceScore: ScoreIndustry,
				Reasoning:      fmt.Sprintf("Relevant branch codes for %s based on the goal", g.Key),
			})
		}
	}
	for _, region := range catalog.RelevantRegions(goalLower) {
		recs = append(recs, Recommendation{
			FilterType:     "region",
			Values:         []string{region},
			RelevanceScore: ScoreRegion,
			Reasoning:      "Relevant region based on geographic keywords",
		})
	}

	if e.kb != nil {
		for _, m := range e.kb.MatchGoal(goal, modules) {
			values := m.Mapping.SuggestedValues
			if len(values) == 0 {
				values = []string{m.Mapping.Term}
			}
			filterType := m.Mapping.PartName
			if filterType == "" {
				filterType = "module_specific"
			}
			recs = append(recs, Recommendation{
				FilterType:     filterType,
				Values:         capitalizeAll(values),
				RelevanceScore: ScoreKnowledge,
				Reasoning:      fmt.Sprintf("Goal term '%s' matches %s (%s)", m.Mapping.Term, m.ModuleTitle, filterType),
				ModuleID:       m.Mapping.ModuleID,
				ModulePartID:   m.Mapping.PartID,
				PartName:       m.Mapping.PartName,
			})
		}
	}

	if media := catalog.LocalMedia(goalLower); len(media) > 0 {
		recs = append(recs, Recommendation{
			FilterType:     "web_source",
			Values:         media,
			RelevanceScore: ScoreLocalMedia,
			Reasoning:      "Local media identified from geographic keywords in the goal",
		})
	}

	if _, ok := e.ext.ExtractTerms(goal)["asbest"]; ok && !hasValue(recs, "asbest") {
		rec := Recommendation{
			FilterType:     "problem",
			Values:         []string{"Asbest"},
			RelevanceScore: ScoreAsbestos,
			Reasoning:      "Goal mentions asbestos: suggest Problem = Asbest (Arbejdstilsyn)",
			PartName:       "Problem",
		}
		if e.cat != nil {
			if id, ok := e.cat.ModuleID("Arbejdstilsyn"); ok {
				rec.ModuleID = id
			}
		}
		recs = append(recs, rec)
	}

	sortByScore(recs)
	return recs
}

// RecommendWithValues extends Recommend with concrete generic values fetched
// for the named modules and ranked against the goal.
func (e *Engine) RecommendWithValues(ctx context.Context, goal string, modules []string) []Recommendation {
	recs := e.Recommend(goal, modules)
	if len(modules) == 0 || e.cat == nil {
		return recs
	}
	goalLower := strings.ToLower(goal)
	for _, name := range modules {
		moduleID, ok := e.cat.ModuleID(name)
		if !ok {
			continue
		}
		if _, err := e.cat.LoadModuleFilters(ctx, moduleID, false); err != nil {
			e.log.Debug("module filters not loaded", "module", name, "error", err)
		}
		parts, err := e.cat.ModuleParts(ctx, moduleID, false)
		if err != nil {
			continue
		}
		for _, p := range parts {
			if p.Part != km24.PartGenericValue {
				continue
			}
			values, err := e.cat.GenericValues(ctx, int(p.ID), false)
			if err != nil || len(values) == 0 {
				continue
			}
			top := rankValues(goalLower, values, 5)
			if len(top) == 0 {
				continue
			}
			filterType := NormalizedFilterType(p.Name)
			if filterType == "" {
				filterType = strings.ToLower(strings.TrimSpace(p.Name))
			}
			if filterType == "" {
				filterType = "module_specific"
			}
			recs = append(recs, Recommendation{
				FilterType:     filterType,
				Values:         top,
				RelevanceScore: ScoreLiveValues,
				Reasoning:      fmt.Sprintf("Semantic match between the goal and %s in %s", p.Name, name),
				ModuleID:       moduleID,
				ModulePartID:   int(p.ID),
				PartName:       p.Name,
			})
		}
	}
	sortByScore(recs)
	return recs
}

// ModuleSpecific suggests values for one module: ranked generic values per
// part, its web sources and a few module-specific rules.
func (e *Engine) ModuleSpecific(ctx context.Context, goal, moduleName string) []Recommendation {
	var recs []Recommendation
	goalLower := strings.ToLower(goal)

	if e.cat != nil {
		if moduleID, ok := e.cat.ModuleID(moduleName); ok {
			if _, err := e.cat.LoadModuleFilters(ctx, moduleID, false); err != nil {
				e.log.Debug("module filters not loaded", "module", moduleName, "error", err)
			}
			parts, _ := e.cat.ModuleParts(ctx, moduleID, false)
			for _, p := range parts {
				if p.Part != km24.PartGenericValue {
					continue
				}
				items, err := e.cat.GenericValues(ctx, int(p.ID), false)
				if err != nil || len(items) == 0 {
					continue
				}
				selected := rankValues(goalLower, items, 5)
				score := 0.9
				if len(selected) == 0 {
					score = 0.7
					for _, it := range items {
						if len(selected) == 3 {
							break
						}
						if it.Name != "" {
							selected = append(selected, it.Name)
						}
					}
				}
				if len(selected) == 0 {
					continue
				}
				filterType := NormalizedFilterType(p.Name)
				if filterType == "" {
					filterType = "module_specific"
				}
				recs = append(recs, Recommendation{
					FilterType:     filterType,
					Values:         selected,
					RelevanceScore: score,
					Reasoning:      fmt.Sprintf("Selected from %s for %s", p.Name, moduleName),
					ModuleID:       moduleID,
					ModulePartID:   int(p.ID),
					PartName:       p.Name,
				})
			}
			if sources := e.cat.CachedWebSources(moduleID); len(sources) > 0 {
				var names []string
				for _, s := range sources {
					if len(names) == 5 {
						break
					}
					names = append(names, s.Name)
				}
				recs = append(recs, Recommendation{
					FilterType:     "web_sources",
					Values:         names,
					RelevanceScore: 0.85,
					Reasoning:      fmt.Sprintf("Web sources for %s", moduleName),
					ModuleID:       moduleID,
				})
			}
		}
	}

	moduleLower := strings.ToLower(moduleName)
	if strings.Contains(moduleLower, "arbejdstilsyn") && containsAny(goalLower, "alvorlig", "alvorlige", "overtrædelse", "ulovlig", "kritik") {
		recs = append(recs, Recommendation{
			FilterType:     "module_specific",
			Values:         []string{"Forbud", "Strakspåbud"},
			RelevanceScore: 0.95,
			Reasoning:      "Serious violations: use Reaktion = Forbud/Strakspåbud",
			PartName:       "Reaktion",
		})
		if strings.Contains(goalLower, "asbest") {
			recs = append(recs, Recommendation{
				FilterType:     "module_specific",
				Values:         []string{"Asbest"},
				RelevanceScore: 0.92,
				Reasoning:      "Asbestos cases: Problem = Asbest",
				PartName:       "Problem",
			})
		}
	}
	if strings.Contains(moduleLower, "tinglysning") && containsAny(goalLower, "ejendom", "ejendomshandel", "handel") {
		recs = append(recs, Recommendation{
			FilterType:     "module_specific",
			Values:         []string{"erhvervsejendom", "landbrugsejendom"},
			RelevanceScore: 0.9,
			Reasoning:      "Tinglysning: property types via generic values",
			PartName:       "Ejendomstype",
		})
	}
	return recs
}

// NormalizedFilterType maps a part name onto a shared filter category, or ""
// when the name is module specific.
func NormalizedFilterType(partName string) string {
	n := strings.ToLower(partName)
	switch {
	case n == "":
		return ""
	case strings.Contains(n, "gernings") || strings.Contains(n, "crime"):
		return "crime_codes"
	case strings.Contains(n, "branche") || strings.Contains(n, "industry"):
		return "branch_codes"
	case strings.Contains(n, "problem"):
		return "problem"
	case strings.Contains(n, "reaktion") || strings.Contains(n, "reaction"):
		return "reaction"
	case strings.Contains(n, "ejendom") || strings.Contains(n, "property"):
		return "property_types"
	}
	return ""
}

func rankValues(goalLower string, items []km24.GenericValue, limit int) []string {
	type scored struct {
		score float64
		name  string
	}
	var ranked []scored
	for _, it := range items {
		name := strings.TrimSpace(it.Name)
		if s := SemanticScore(goalLower, name+" "+it.Description); s > 0 {
			ranked = append(ranked, scored{s, name})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	var out []string
	for _, r := range ranked {
		if len(out) == limit {
			break
		}
		out = append(out, r.name)
	}
	return out
}

func sortByScore(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].RelevanceScore > recs[j].RelevanceScore })
}

func hasValue(recs []Recommendation, value string) bool {
	for _, r := range recs {
		for _, v := range r.Values {
			if strings.EqualFold(v, value) {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func capitalizeAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = capitalize(v)
	}
	return out
}
