package enrich

import (
	"fmt"
	"strings"
	"unicode"

	"km24vejviser/internal/recipe"
)

// PowerTip returns the tip for a step. A search string using ';' gets the
// semicolon tip ahead of any module tip.
func (l *Library) PowerTip(module, search string) (PowerTip, bool) {
	if strings.Contains(search, ";") {
		return l.c.PowerTips.Semicolon, true
	}
	return lookupFold(l.c.PowerTips.Modules, module)
}

// SupplementaryModules suggests modules whose keywords occur in text.
func (l *Library) SupplementaryModules(text string) []Supplement {
	text = strings.ToLower(text)
	var out []Supplement
	for _, r := range l.c.SupplementaryModules {
		for _, kw := range r.Keywords {
			if containsWord(text, kw) {
				out = append(out, Supplement{Module: r.Module, Reason: r.Reason})
				break
			}
		}
	}
	return out
}

// SourceWarning is non-empty for modules that need a source selection.
func (l *Library) SourceWarning(module string) string {
	if recipe.IsWebSourceModule(module) {
		return l.c.SourceWarning
	}
	return ""
}

// GeoAdvice is non-empty when a step title is about geography.
func (l *Library) GeoAdvice(title string) string {
	t := strings.ToLower(title)
	for _, kw := range l.c.GeoKeywords {
		if strings.Contains(t, kw) {
			return l.c.GeoAdvice
		}
	}
	return ""
}

// containsWord matches short keywords like "eu" as whole words and longer
// ones as substrings.
func containsWord(text, kw string) bool {
	if len([]rune(kw)) > 3 {
		return strings.Contains(text, kw)
	}
	for _, f := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if f == kw {
			return true
		}
	}
	return false
}

// Advise fills empty advanced_tactics and strategic_note fields, adds
// source warnings to guardrails and writes cadence and module suggestions
// into quality.recommendations.
func (e *Enricher) Advise(r *recipe.Recipe, goal string) {
	present := map[string]bool{}
	for _, s := range r.Steps {
		present[strings.ToLower(s.Module.Name)] = true
	}

	for i := range r.Steps {
		s := &r.Steps[i]
		if tip, ok := e.lib.PowerTip(s.Module.Name, s.SearchString); ok && s.AdvancedTactics == "" {
			s.AdvancedTactics = tip.Title + ": " + tip.Explanation
		}
		if w := e.lib.SourceWarning(s.Module.Name); w != "" {
			s.Guardrails.Warnings = appendUnique(s.Guardrails.Warnings, w)
		}
		if s.StrategicNote == "" {
			s.StrategicNote = e.lib.GeoAdvice(s.Title)
		}
		if rec := recipe.RecommendNotification(s.Module.Name); rec == recipe.NotifyInstant && s.Notification != rec {
			r.Quality.Recommendations = appendUnique(r.Quality.Recommendations,
				fmt.Sprintf("Step %d: consider instant notification for %s", s.StepNumber, s.Module.Name))
		}
	}

	for _, sup := range e.lib.SupplementaryModules(goal + " " + r.Overview.StrategySummary) {
		if present[strings.ToLower(sup.Module)] {
			continue
		}
		r.Quality.Recommendations = appendUnique(r.Quality.Recommendations,
			fmt.Sprintf("Consider adding module %s: %s", sup.Module, sup.Reason))
	}
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
