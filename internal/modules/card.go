package modules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"km24vejviser/internal/km24"
)

// FilterInfo describes one configurable part of a module.
type FilterInfo struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	Info         string `json:"info"`
	Multiple     bool   `json:"multiple"`
	Order        int    `json:"order"`
	PracticalUse string `json:"practical_use"`
}

// Card is the module metadata shown next to a recipe step.
type Card struct {
	Title                   string       `json:"title"`
	Slug                    string       `json:"slug"`
	Emoji                   string       `json:"emoji"`
	Color                   string       `json:"color"`
	ShortDescription        string       `json:"short_description"`
	LongDescription         string       `json:"long_description"`
	DataFrequency           string       `json:"data_frequency"`
	AvailableFilters        []FilterInfo `json:"available_filters"`
	RequiresSourceSelection bool         `json:"requires_source_selection"`
}

// Card builds the card for the module with the given exact title. The
// boolean is false when no such module exists.
func (v *Validator) Card(ctx context.Context, title string) (Card, bool, error) {
	mods, err := v.load(ctx)
	if err != nil {
		return Card{}, false, err
	}
	for _, m := range mods {
		if m.Title == title {
			return cardFor(m), true, nil
		}
	}
	return Card{}, false, nil
}

func cardFor(m km24.Module) Card {
	c := Card{
		Title:            m.Title,
		Slug:             m.Slug,
		Emoji:            m.Emoji,
		Color:            "#" + m.ColorHex,
		ShortDescription: m.ShortDescription,
		LongDescription:  m.LongDescription,
		DataFrequency:    DataFrequency(m.LongDescription),
		AvailableFilters: make([]FilterInfo, 0, len(m.Parts)),
	}
	if c.Emoji == "" {
		c.Emoji = "📊"
	}
	if m.ColorHex == "" {
		c.Color = "#666666"
	}
	for _, p := range m.Parts {
		order := p.Order
		if order == 0 {
			order = 999
		}
		c.AvailableFilters = append(c.AvailableFilters, FilterInfo{
			Type:         p.Part,
			Name:         p.Name,
			Info:         p.Info,
			Multiple:     p.CanSelectMultiple,
			Order:        order,
			PracticalUse: PracticalUse(p.Part, p.Name),
		})
		if p.Part == km24.PartWebSource {
			c.RequiresSourceSelection = true
		}
	}
	sort.SliceStable(c.AvailableFilters, func(i, j int) bool {
		return c.AvailableFilters[i].Order < c.AvailableFilters[j].Order
	})
	return c
}

// PracticalUse gives a one-line usage tip for a part type.
func PracticalUse(partType, name string) string {
	tip, ok := tables.PartTips[partType]
	if !ok {
		return fmt.Sprintf("Configure %s as needed", name)
	}
	if strings.Contains(tip, "%s") {
		return fmt.Sprintf(tip, strings.ToLower(name))
	}
	return tip
}

// DataFrequency guesses the update cadence from a module description.
func DataFrequency(description string) string {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "dagligt"):
		return "several times daily"
	case strings.Contains(d, "ugentlig"):
		return "weekly"
	case strings.Contains(d, "månedlig"):
		return "monthly"
	default:
		return "continuous updates"
	}
}

// FilterAdvice is a suggested order for applying a module's filters.
type FilterAdvice struct {
	OptimalSequence   []string `json:"optimal_sequence"`
	EfficiencyTips    []string `json:"efficiency_tips"`
	ComplexityWarning string   `json:"complexity_warning,omitempty"`
}

var filterPriority = map[string]int{
	km24.PartIndustry:        1,
	km24.PartMunicipality:    2,
	km24.PartAmountSelection: 3,
	km24.PartCompany:         4,
	km24.PartGenericValue:    5,
	km24.PartWebSource:       6,
	km24.PartSearchString:    7,
	km24.PartHitLogic:        8,
}

func priority(partType string) int {
	if p, ok := filterPriority[partType]; ok {
		return p
	}
	return 9
}

// Advise orders a module's filters from most to least narrowing.
func (v *Validator) Advise(ctx context.Context, title string) (FilterAdvice, error) {
	card, ok, err := v.Card(ctx, title)
	if err != nil {
		return FilterAdvice{}, err
	}
	if !ok {
		return FilterAdvice{ComplexityWarning: "Module not found"}, nil
	}
	filters := append([]FilterInfo(nil), card.AvailableFilters...)
	sort.SliceStable(filters, func(i, j int) bool { return priority(filters[i].Type) < priority(filters[j].Type) })

	adv := FilterAdvice{OptimalSequence: []string{}, EfficiencyTips: []string{}}
	hasIndustry := false
	for i, f := range filters {
		if f.Type == km24.PartIndustry {
			hasIndustry = true
		}
		if f.Type == km24.PartHitLogic {
			continue
		}
		step := fmt.Sprintf("%d. %s", i+1, f.Name)
		switch f.Type {
		case km24.PartIndustry:
			step += " (742 branch codes available)"
		case km24.PartMunicipality:
			step += " (98 municipalities + Christiansø)"
		}
		adv.OptimalSequence = append(adv.OptimalSequence, step)
		if f.Multiple {
			adv.EfficiencyTips = append(adv.EfficiencyTips, "Multi-select possible on "+f.Name)
		}
		if f.Info != "" {
			info := []rune(f.Info)
			if len(info) > 100 {
				info = info[:100]
			}
			adv.EfficiencyTips = append(adv.EfficiencyTips, fmt.Sprintf("%s: %s...", f.Name, string(info)))
		}
	}
	switch {
	case card.RequiresSourceSelection:
		adv.ComplexityWarning = "REQUIRED: manual source selection is needed for this module"
	case !hasIndustry:
		adv.ComplexityWarning = "No industry filtering available - may produce many hits"
	}
	return adv, nil
}

// Complexity estimates hit volume for a module given the filter types in use.
type Complexity struct {
	EstimatedHits              string            `json:"estimated_hits"`
	FilterEfficiency           string            `json:"filter_efficiency"`
	NotificationRecommendation map[string]string `json:"notification_recommendation"`
	OptimizationSuggestions    []string          `json:"optimization_suggestions"`
}

// AnalyzeComplexity scores how broad a module configuration is. filters is
// keyed by part type ("industry", "municipality", "amount").
func (v *Validator) AnalyzeComplexity(ctx context.Context, title string, filters map[string][]string) (Complexity, error) {
	card, ok, err := v.Card(ctx, title)
	if err != nil {
		return Complexity{}, err
	}
	if !ok {
		return Complexity{EstimatedHits: "Unknown", FilterEfficiency: "Low", NotificationRecommendation: map[string]string{}, OptimizationSuggestions: []string{}}, nil
	}
	has := map[string]bool{}
	for _, f := range card.AvailableFilters {
		has[f.Type] = true
	}
	score := 0
	opts := []string{}
	if len(filters["industry"]) > 0 {
		score -= 30
	} else if has[km24.PartIndustry] {
		opts = append(opts, "Add an industry filter for fewer and more relevant hits")
		score += 50
	}
	if len(filters["municipality"]) > 0 {
		score -= 20
	} else if has[km24.PartMunicipality] {
		opts = append(opts, "Limit geographically for more focused monitoring")
		score += 30
	}
	if _, set := filters["amount"]; has[km24.PartAmountSelection] && !set {
		opts = append(opts, "Consider an amount threshold to focus on larger cases")
		score += 20
	}

	c := Complexity{OptimizationSuggestions: opts}
	var notification, reason string
	switch {
	case score > 60:
		c.EstimatedHits, notification, reason = "Very high (>500/day)", "interval", "Too many hits for instant notifications"
	case score > 30:
		c.EstimatedHits, notification, reason = "High (100-500/day)", "interval", "Many hits - consider interval notifications"
	case score > 0:
		c.EstimatedHits, notification, reason = "Medium (20-100/day)", "løbende", "Manageable number of hits for continuous monitoring"
	default:
		c.EstimatedHits, notification, reason = "Low (1-20/day)", "løbende", "Few, relevant hits - ideal for instant notifications"
	}
	switch {
	case score > 40:
		c.FilterEfficiency = "Low - add more filters"
	case score > 20:
		c.FilterEfficiency = "Medium - consider further filtering"
	default:
		c.FilterEfficiency = "High - well configured"
	}
	optimization := "Configuration looks good"
	if len(opts) > 0 {
		optimization = opts[0]
	}
	c.NotificationRecommendation = map[string]string{"type": notification, "reason": reason, "optimization": optimization}
	return c, nil
}

// Workflow links a primary module to modules that follow up on its hits.
type Workflow struct {
	Primary    string   `json:"primary" yaml:"primary"`
	ConnectsTo []string `json:"connects_to" yaml:"connects_to"`
	Workflow   string   `json:"workflow" yaml:"workflow"`
	Timing     string   `json:"timing" yaml:"timing"`
	Rationale  string   `json:"rationale" yaml:"rationale"`
}

// Workflows returns the known cross-module workflows whose primary module
// and at least one connected module are both among modules. ConnectsTo is
// narrowed to the selected modules.
func Workflows(modules []string) []Workflow {
	selected := map[string]bool{}
	for _, m := range modules {
		selected[m] = true
	}
	var out []Workflow
	for _, w := range tables.Workflows {
		if !selected[w.Primary] {
			continue
		}
		var conn []string
		for _, c := range w.ConnectsTo {
			if selected[c] {
				conn = append(conn, c)
			}
		}
		if len(conn) == 0 {
			continue
		}
		w.ConnectsTo = conn
		out = append(out, w)
	}
	return out
}
