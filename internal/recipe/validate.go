package recipe

import (
	"fmt"
	"strings"
	"unicode"
)

// MinSteps is the shallowest pipeline a recipe may have.
const MinSteps = 3

// allowedRawFilters are filter keys ValidateRaw accepts beside the
// platform's part names.
var allowedRawFilters = map[string]bool{
	"geografi": true, "branche": true, "beløb": true, "periode": true,
	"kommune": true, "region": true, "virksomhed": true, "problem": true,
	"reaktion": true, "ejendomstype": true, "medie": true, "søgeord": true,
}

// Validate checks a normalized recipe and returns every violation found,
// in a stable order. An empty result means the recipe is complete.
func Validate(r *Recipe) []string {
	if r == nil {
		return []string{"Recipe is empty"}
	}
	var errs []string

	for _, name := range tables.RequiredSections {
		if sectionEmpty(r, name) {
			errs = append(errs, "Mangler sektion: "+name)
		}
	}

	if len(r.Steps) < MinSteps {
		errs = append(errs, fmt.Sprintf("Pipeline must have at least %d steps (has %d)", MinSteps, len(r.Steps)))
	}

	numbers := map[int]bool{}
	sequential := true
	unique := true
	for i, s := range r.Steps {
		if numbers[s.StepNumber] {
			unique = false
		}
		numbers[s.StepNumber] = true
		if s.StepNumber != i+1 {
			sequential = false
		}
		errs = append(errs, lintStep(s)...)
	}
	if !unique {
		errs = append(errs, "Step numbers must be unique")
	}
	if !sequential {
		errs = append(errs, "Step numbers must be sequential starting from 1")
	}

	for _, ref := range r.CrossRefs {
		if !numbers[ref.FromStep] {
			errs = append(errs, fmt.Sprintf("Cross-reference from_step %d does not exist", ref.FromStep))
		}
		if !numbers[ref.ToStep] {
			errs = append(errs, fmt.Sprintf("Cross-reference to_step %d does not exist", ref.ToStep))
		}
	}
	return errs
}

func sectionEmpty(r *Recipe, name string) bool {
	switch name {
	case "next_level_questions":
		return len(r.NextLevelQuestions) == 0
	case "potential_story_angles":
		return len(r.PotentialStoryAngles) == 0
	case "creative_cross_references":
		return len(r.CreativeCrossReferences) == 0
	case "quality":
		return r.Quality.empty()
	case "steps":
		return len(r.Steps) == 0
	}
	return false
}

func lintStep(s Step) []string {
	var errs []string
	n := s.StepNumber
	if !IsKnownModule(s.Module.Name) {
		errs = append(errs, fmt.Sprintf("Step %d: unknown module '%s'", n, s.Module.Name))
	}
	errs = append(errs, lintSearch(n, s.SearchString)...)
	switch s.Notification {
	case NotifyInstant, NotifyDaily, NotifyWeekly:
	default:
		errs = append(errs, fmt.Sprintf("Step %d: invalid notification '%s' (use instant, daily or weekly)", n, s.Notification))
	}
	if (s.Module.IsWebSource || IsWebSourceModule(s.Module.Name)) && len(s.SourceSelection) == 0 {
		errs = append(errs, fmt.Sprintf("Step %d: web-source module '%s' requires source_selection", n, s.Module.Name))
	}
	return errs
}

func lintSearch(n int, search string) []string {
	var errs []string
	for _, op := range lowerOperators(search) {
		errs = append(errs, fmt.Sprintf("Step %d: invalid operator '%s' in search_string (use AND/OR/NOT or ';')", n, op))
	}
	if strings.Contains(search, ",") {
		errs = append(errs, fmt.Sprintf("Step %d: use ';' instead of ',' in search_string '%s'", n, search))
	}
	return errs
}

// lowerOperators lists the distinct lower-case boolean operators in search,
// in order of first appearance.
func lowerOperators(search string) []string {
	tokens := strings.FieldsFunc(search, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("~;()", r)
	})
	var ops []string
	seen := map[string]bool{}
	for _, tok := range tokens {
		switch tok {
		case "and", "or", "not":
			if !seen[tok] {
				seen[tok] = true
				ops = append(ops, tok)
			}
		}
	}
	return ops
}

// ValidateRaw lints generator output before normalization. Locale
// notification tokens are accepted; modules are checked against the static
// whitelist only.
func ValidateRaw(raw map[string]any) (bool, []string) {
	var errs []string
	for _, name := range tables.RequiredSections {
		v, ok := raw[name]
		if !ok || isEmptyValue(v) {
			errs = append(errs, "Mangler sektion: "+name)
		}
	}

	steps, _ := raw["steps"].([]any)
	if steps == nil {
		steps, _ = raw["investigation_steps"].([]any)
	}
	if len(steps) < MinSteps {
		errs = append(errs, fmt.Sprintf("Pipeline must have at least %d steps (has %d)", MinSteps, len(steps)))
	}
	for i, rs := range steps {
		m, ok := rs.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("Step %d: not an object", i+1))
			continue
		}
		n := i + 1
		details, _ := m["details"].(map[string]any)
		if details == nil {
			details = map[string]any{}
		}

		ref := moduleRef(m)
		if ref.Name == "" {
			errs = append(errs, fmt.Sprintf("Step %d: missing module", n))
		} else if !IsKnownModule(ref.Name) {
			errs = append(errs, fmt.Sprintf("Step %d: unknown module '%s'", n, ref.Name))
		}

		errs = append(errs, lintSearch(n, firstString(m["search_string"], details["search_string"]))...)

		notif := firstPresent(m, "notification", "recommended_notification")
		if notif == nil {
			notif = firstPresent(details, "recommended_notification", "notification")
		}
		if _, ok := NormalizeNotification(notif); !ok {
			errs = append(errs, fmt.Sprintf("Step %d: invalid notification '%v'", n, notif))
		}

		if filters, ok := firstPresent(m, "filters").(map[string]any); ok {
			for name := range filters {
				if !allowedRawFilters[strings.ToLower(name)] {
					errs = append(errs, fmt.Sprintf("Step %d: unknown filter '%s'", n, name))
				}
			}
		}

		if IsWebSourceModule(ref.Name) || ref.IsWebSource {
			if len(strList(firstPresent(m, "source_selection"))) == 0 && len(strList(details["source_selection"])) == 0 {
				errs = append(errs, fmt.Sprintf("Step %d: web-source module '%s' requires source_selection", n, ref.Name))
			}
		}
	}
	return len(errs) == 0, errs
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// FormatErrors renders violations as a bulleted block for callers and for
// feeding back to the generator.
func FormatErrors(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("INVALID RECIPE – FIX THE FOLLOWING:")
	for _, e := range errs {
		b.WriteString("\n• ")
		b.WriteString(e)
	}
	return b.String()
}
