package enrich

import (
	"fmt"
	"strings"

	"km24vejviser/internal/logger"
	"km24vejviser/internal/recipe"
)

// MaxMistakes is how many pitfalls each step lists.
const MaxMistakes = 5

type Enricher struct {
	lib *Library
	log *logger.Logger
}

func NewEnricher(lib *Library, log *logger.Logger) *Enricher {
	if lib == nil {
		lib = DefaultLibrary()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Enricher{lib: lib, log: log.With("component", "enricher")}
}

// Enrich fills the per-step educational blocks, the recipe-level
// educational content and the advisor's hints. It runs after
// normalization and before final validation, and never removes data.
func (e *Enricher) Enrich(r *recipe.Recipe, goal string) {
	if r == nil {
		return
	}
	for i := range r.Steps {
		r.Steps[i].Educational = e.Step(r.Steps[i], goal)
	}
	r.EducationalContent = e.Universal()
	e.Advise(r, goal)
	e.log.Info("recipe enriched", "steps", len(r.Steps))
}

func (e *Enricher) Step(s recipe.Step, goal string) *recipe.StepEducational {
	module := s.Module.Name
	edu := &recipe.StepEducational{
		FilterExplanations: map[string]string{},
		QualityChecklist:   e.lib.Checklist(module),
		CommonMistakes:     e.lib.Mistakes(MaxMistakes),
		RedFlags:           e.redFlags(module, s.Filters),
		ActionPlan:         e.actionPlan(module, s.Notification),
		ExampleHit:         e.exampleHit(module, s.Filters),
		WhyThisStep:        s.Rationale,
	}
	if p, ok := e.lib.Principle(e.lib.RelevantPrinciple(goal, module)); ok {
		edu.Principle = p.Title + ": " + strings.TrimSpace(p.Description)
	}
	for name, values := range s.Filters {
		edu.FilterExplanations[name] = e.lib.ExplainFilter(name, values, module)
	}
	if edu.CommonMistakes == nil {
		edu.CommonMistakes = []string{}
	}
	return edu
}

func (e *Enricher) Universal() *recipe.EducationalContent {
	principles := map[string]string{}
	for _, p := range e.lib.Principles() {
		principles[p.Key] = fmt.Sprintf("%s\n\n%s\n\nAnvend når: %s", p.Title, strings.TrimSpace(p.Description), p.WhenToApply)
	}
	return &recipe.EducationalContent{
		SyntaxGuide:     e.lib.Section("syntax_guide"),
		CommonPitfalls:  e.lib.Section("common_pitfalls"),
		Troubleshooting: e.lib.Section("troubleshooting"),
		KM24Principles:  principles,
	}
}

func (e *Enricher) redFlags(module string, filters map[string][]string) []string {
	rules, _ := lookupFold(e.lib.c.RedFlags, module)
	var flags []string
	for _, r := range rules {
		if r.When != nil && !anyValue(filters, r.When.Filter, r.When.AnyOf) {
			continue
		}
		flags = append(flags, r.Flags...)
	}
	if len(flags) == 0 {
		flags = []string{fmt.Sprintf("Overvåg %s-hits for uventede mønstre og afvigelser", module)}
	}
	return flags
}

func anyValue(filters map[string][]string, name string, wanted []string) bool {
	values, _ := lookupFold(filters, name)
	for _, v := range values {
		for _, w := range wanted {
			if strings.EqualFold(v, w) {
				return true
			}
		}
	}
	return false
}

func (e *Enricher) actionPlan(module, notification string) string {
	plans := e.lib.c.ActionPlans
	lines := plans.Periodic
	if notification == recipe.NotifyInstant {
		lines = plans.Instant
	}
	moduleLines, _ := lookupFold(plans.Modules, module)
	lines = append(append(append([]string{}, lines...), moduleLines...), plans.Final)

	var b strings.Builder
	fmt.Fprintf(&b, "Når %s-hits ankommer:\n", module)
	for i, l := range lines {
		fmt.Fprintf(&b, "\n%d. %s", i+1, l)
	}
	return b.String()
}

func (e *Enricher) exampleHit(module string, filters map[string][]string) string {
	ex, ok := lookupFold(e.lib.c.ExampleHits, module)
	if !ok {
		return fmt.Sprintf("Eksempel på %s-hit: hits fra %s vises med modulets felter og metadata.", module, module)
	}
	text := ex.Text
	if ex.Filter != "" {
		value := ex.Default
		if values, _ := lookupFold(filters, ex.Filter); len(values) > 0 {
			value = values[0]
		}
		text = fmt.Sprintf(text, value)
	}
	return fmt.Sprintf("Eksempel på %s-hit: %s", module, text)
}
