package recipe

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"km24vejviser/internal/km24"
	"km24vejviser/internal/logger"
)

// MaxFocusLen is the longest goal used verbatim as scope.primary_focus.
const MaxFocusLen = 100

// ModuleResolver looks a module up by title, exact match first and then
// case-insensitively. *catalog.Catalog satisfies it.
type ModuleResolver interface {
	Module(name string) (km24.Module, bool)
}

// NormalizeError reports raw input the normalizer cannot coerce.
type NormalizeError struct {
	Step   int
	Field  string
	Reason string
}

func (e *NormalizeError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("normalize step %d: %s: %s", e.Step, e.Field, e.Reason)
	}
	return fmt.Sprintf("normalize: %s: %s", e.Field, e.Reason)
}

type Normalizer struct {
	modules ModuleResolver
	log     *logger.Logger
}

// NewNormalizer returns a Normalizer. modules may be nil, in which case
// module references are kept as supplied and web-source status comes from
// the static module table.
func NewNormalizer(modules ModuleResolver, log *logger.Logger) *Normalizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Normalizer{modules: modules, log: log.With("component", "normalizer")}
}

// Normalize coerces raw into a Recipe. Both the generator's shape
// (investigation_steps with details) and an already normalized recipe are
// accepted; normalizing a normalized recipe with an empty goal returns an
// equal recipe. Missing fields get defaults. The only failure is a value
// that cannot be read as a list of strings where one is required.
func (n *Normalizer) Normalize(raw map[string]any, goal string) (*Recipe, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	r := &Recipe{}
	w := &warnings{seen: map[string]bool{}}
	for _, prev := range strList(raw["validation_warnings"]) {
		w.add(prev)
	}

	n.section(raw, "overview", &r.Overview, w)
	n.section(raw, "scope", &r.Scope, w)
	n.section(raw, "monitoring", &r.Monitoring, w)
	n.section(raw, "hit_budget", &r.HitBudget, w)
	n.section(raw, "notifications", &r.Notifications, w)
	n.section(raw, "parallel_profile", &r.ParallelProfile, w)
	n.section(raw, "syntax_guide", &r.SyntaxGuide, w)
	n.section(raw, "quality", &r.Quality, w)
	n.section(raw, "artifacts", &r.Artifacts, w)
	if raw["context"] != nil {
		r.Context = &ContextBlock{}
		if !n.section(raw, "context", r.Context, w) {
			r.Context = nil
		}
	}
	if raw["ai_assessment"] != nil {
		r.AIAssessment = &AIAssessment{}
		if !n.section(raw, "ai_assessment", r.AIAssessment, w) {
			r.AIAssessment = nil
		}
	}
	if raw["educational_content"] != nil {
		r.EducationalContent = &EducationalContent{}
		if !n.section(raw, "educational_content", r.EducationalContent, w) {
			r.EducationalContent = nil
		}
	}

	if r.Overview.Title == "" {
		r.Overview.Title = str(raw["title"])
	}
	if r.Overview.StrategySummary == "" {
		r.Overview.StrategySummary = firstString(raw["strategy_summary"], raw["strategy"])
	}
	if goal = strings.TrimSpace(goal); goal != "" {
		r.Scope.PrimaryFocus = PrimaryFocus(goal)
	}

	rawSteps, _ := raw["steps"].([]any)
	if rawSteps == nil {
		rawSteps, _ = raw["investigation_steps"].([]any)
	}
	r.Steps = make([]Step, 0, len(rawSteps))
	for i, rs := range rawSteps {
		m, ok := rs.(map[string]any)
		if !ok {
			return nil, &NormalizeError{Step: i + 1, Field: "step", Reason: fmt.Sprintf("expected object, got %T", rs)}
		}
		step, err := n.step(m, i+1, w)
		if err != nil {
			return nil, err
		}
		r.Steps = append(r.Steps, step)
	}

	if refs, ok := raw["cross_refs"].([]any); ok {
		for _, ref := range refs {
			m, ok := ref.(map[string]any)
			if !ok {
				continue
			}
			from, _ := intOf(m["from_step"])
			to, _ := intOf(m["to_step"])
			r.CrossRefs = append(r.CrossRefs, CrossRef{
				FromStep:     from,
				ToStep:       to,
				Relationship: str(m["relationship"]),
				Rationale:    str(m["rationale"]),
			})
		}
	}

	r.NextLevelQuestions = strList(firstPresent(raw, "next_level_questions", "next_level_question"))
	r.PotentialStoryAngles = strList(raw["potential_story_angles"])
	r.CreativeCrossReferences = strList(raw["creative_cross_references"])

	n.applyDefaults(r, w)
	r.ValidationWarnings = w.list
	return r, nil
}

// PrimaryFocus shortens goal to MaxFocusLen runes followed by "...".
func PrimaryFocus(goal string) string {
	if utf8.RuneCountInString(goal) <= MaxFocusLen {
		return goal
	}
	return string([]rune(goal)[:MaxFocusLen]) + "..."
}

func (n *Normalizer) step(m map[string]any, number int, w *warnings) (Step, error) {
	details, _ := m["details"].(map[string]any)
	if details == nil {
		details = map[string]any{}
	}
	s := Step{
		StepNumber:       number,
		Title:            str(m["title"]),
		Type:             str(m["type"]),
		Rationale:        firstString(m["rationale"], details["rationale"]),
		Delivery:         str(m["delivery"]),
		StrategicNote:    firstString(m["strategic_note"], details["strategic_note"]),
		Explanation:      firstString(m["explanation"], details["explanation"]),
		CreativeInsights: firstString(m["creative_insights"], details["creative_insights"]),
		AdvancedTactics:  firstString(m["advanced_tactics"], details["advanced_tactics"]),
	}
	if s.Type == "" {
		s.Type = "search"
	}
	if s.Delivery == "" {
		s.Delivery = "email"
	}

	s.Module = n.resolveModule(moduleRef(m))
	s.SearchString = StandardizeSearchString(firstString(m["search_string"], details["search_string"]), s.Module.Name)

	filters, err := coerceFilters(firstPresent(m, "filters"), firstPresent(details, "filters"))
	if err != nil {
		err.Step = number
		return Step{}, err
	}
	s.Filters = filters

	rawNotif, present := m["notification"]
	if !present || rawNotif == nil {
		rawNotif = firstPresent(details, "recommended_notification", "notification")
		if rawNotif == nil {
			rawNotif = m["recommended_notification"]
		}
	}
	notif, ok := NormalizeNotification(rawNotif)
	if !ok {
		n.log.Warn("unknown notification value, using daily", "step", number, "value", rawNotif)
		w.add(fmt.Sprintf("Step %d: unknown notification '%v', using daily", number, rawNotif))
	}
	s.Notification = notif

	if v, ok := m["api"].(map[string]any); ok {
		api := &APIBlock{}
		if decode(v, api) == nil {
			s.API = api
		}
	}
	if v, ok := m["guardrails"].(map[string]any); ok {
		_ = decode(v, &s.Guardrails)
	}
	s.Guardrails.RequiredFilters = nonNil(s.Guardrails.RequiredFilters)
	s.Guardrails.Warnings = nonNil(s.Guardrails.Warnings)
	if v, ok := m["educational"].(map[string]any); ok {
		edu := &StepEducational{}
		if decode(v, edu) == nil {
			s.Educational = edu
		}
	}

	s.SourceSelection = strList(firstPresent(m, "source_selection"))
	if len(s.SourceSelection) == 0 {
		s.SourceSelection = strList(details["source_selection"])
	}
	if s.Module.IsWebSource && len(s.SourceSelection) == 0 {
		s.SourceSelection = DefaultSources(s.Module.Name)
	}
	s.SourceSelection = nonNil(s.SourceSelection)
	return s, nil
}

func moduleRef(m map[string]any) ModuleRef {
	switch v := m["module"].(type) {
	case string:
		return ModuleRef{Name: strings.TrimSpace(v), ID: idString(m["module_id"])}
	case map[string]any:
		ws, _ := v["is_web_source"].(bool)
		return ModuleRef{
			ID:          idString(v["id"]),
			Name:        strings.TrimSpace(firstString(v["name"], v["title"])),
			IsWebSource: ws,
		}
	default:
		return ModuleRef{Name: str(m["module_name"]), ID: idString(m["module_id"])}
	}
}

// resolveModule stamps id, canonical title and web-source status from the
// module list. A name the list does not know keeps its name but loses any
// supplied id, so validation reports the module.
func (n *Normalizer) resolveModule(ref ModuleRef) ModuleRef {
	if n.modules != nil && ref.Name != "" {
		if mod, ok := n.modules.Module(ref.Name); ok {
			return ModuleRef{
				ID:          strconv.Itoa(int(mod.ID)),
				Name:        mod.Title,
				IsWebSource: mod.IsWebSource() || IsWebSourceModule(mod.Title),
			}
		}
		n.log.Warn("module not found", "module", ref.Name)
		ref.ID = ""
	}
	if IsWebSourceModule(ref.Name) {
		ref.IsWebSource = true
	}
	return ref
}

func (n *Normalizer) applyDefaults(r *Recipe, w *warnings) {
	if r.Overview.EstimatedDuration == "" {
		r.Overview.EstimatedDuration = "1-2 weeks"
	}
	if len(r.Overview.ModuleFlow) == 0 {
		for _, s := range r.Steps {
			if s.Module.Name != "" {
				r.Overview.ModuleFlow = append(r.Overview.ModuleFlow, s.Module.Name)
			}
		}
	}
	r.Overview.ModuleFlow = nonNil(r.Overview.ModuleFlow)

	r.Scope.SecondaryAreas = nonNil(r.Scope.SecondaryAreas)
	r.Scope.Exclusions = nonNil(r.Scope.Exclusions)
	r.Scope.Limitations = nonNil(r.Scope.Limitations)

	switch r.Monitoring.Type {
	case "keywords", "cvr", "mixed":
	default:
		r.Monitoring.Type = "keywords"
	}
	if r.Monitoring.Frequency == "" {
		r.Monitoring.Frequency = NotifyDaily
	}
	r.Monitoring.Alerts = nonNil(r.Monitoring.Alerts)

	if r.HitBudget.ExpectedHits == "" {
		r.HitBudget.ExpectedHits = "moderate"
	}
	if r.HitBudget.BudgetAllocation == nil {
		r.HitBudget.BudgetAllocation = map[string]int{}
	}
	r.HitBudget.ResourceRequirements = nonNil(r.HitBudget.ResourceRequirements)

	primary, ok := NormalizeNotification(r.Notifications.Primary)
	if !ok {
		n.log.Warn("unknown primary notification, using daily", "value", r.Notifications.Primary)
		w.add(fmt.Sprintf("Notifications: unknown primary '%s', using daily", r.Notifications.Primary))
	}
	r.Notifications.Primary = primary
	if r.Notifications.Secondary != "" {
		secondary, ok := NormalizeNotification(r.Notifications.Secondary)
		if !ok {
			w.add(fmt.Sprintf("Notifications: unknown secondary '%s', using daily", r.Notifications.Secondary))
		}
		r.Notifications.Secondary = secondary
	}
	if len(r.Notifications.Channels) == 0 {
		r.Notifications.Channels = []string{"email"}
	}

	if r.ParallelProfile.MaxConcurrent <= 0 {
		r.ParallelProfile.MaxConcurrent = 3
	}
	if r.ParallelProfile.Dependencies == nil {
		r.ParallelProfile.Dependencies = map[int][]int{}
	}
	r.ParallelProfile.CriticalPath = nonNilInts(r.ParallelProfile.CriticalPath)

	if r.CrossRefs == nil {
		r.CrossRefs = []CrossRef{}
	}
	r.SyntaxGuide.BasicSyntax = nonNil(r.SyntaxGuide.BasicSyntax)
	r.SyntaxGuide.AdvancedSyntax = nonNil(r.SyntaxGuide.AdvancedSyntax)
	r.SyntaxGuide.Tips = nonNil(r.SyntaxGuide.Tips)
	r.Quality.Checks = nonNil(r.Quality.Checks)
	r.Quality.Warnings = nonNil(r.Quality.Warnings)
	r.Quality.Recommendations = nonNil(r.Quality.Recommendations)

	exports := []string{}
	for _, e := range r.Artifacts.Exports {
		e = strings.ToLower(strings.TrimSpace(e))
		if tables.exports[e] {
			exports = append(exports, e)
		} else if e != "" {
			w.add(fmt.Sprintf("Unsupported export format '%s' dropped", e))
		}
	}
	r.Artifacts.Exports = exports
	r.Artifacts.Reports = nonNil(r.Artifacts.Reports)
	r.Artifacts.Visualizations = nonNil(r.Artifacts.Visualizations)

	r.NextLevelQuestions = nonNil(r.NextLevelQuestions)
	r.PotentialStoryAngles = nonNil(r.PotentialStoryAngles)
	r.CreativeCrossReferences = nonNil(r.CreativeCrossReferences)
}

// section decodes raw[key] into dst. A section of the wrong shape is
// dropped with a warning; the return value reports whether dst was filled.
func (n *Normalizer) section(raw map[string]any, key string, dst any, w *warnings) bool {
	v, ok := raw[key]
	if !ok || v == nil {
		return false
	}
	if err := decode(v, dst); err != nil {
		n.log.Warn("section ignored", "section", key, "error", err)
		w.add(fmt.Sprintf("Section '%s' could not be read and was reset", key))
		return false
	}
	return true
}

func decode(v any, dst any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// coerceFilters reads filter maps. Each value may be a string, number,
// bool or list of those; anything else is an error.
func coerceFilters(sources ...any) (map[string][]string, *NormalizeError) {
	out := map[string][]string{}
	for _, src := range sources {
		if src == nil {
			continue
		}
		m, ok := src.(map[string]any)
		if !ok {
			return nil, &NormalizeError{Field: "filters", Reason: fmt.Sprintf("expected object, got %T", src)}
		}
		for name, v := range m {
			vals, err := filterValues(v)
			if err != nil {
				return nil, &NormalizeError{Field: "filters." + name, Reason: err.Error()}
			}
			if _, exists := out[name]; !exists {
				out[name] = vals
			}
		}
	}
	return out, nil
}

func filterValues(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return []string{}, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := scalar(item)
			if !ok {
				return nil, fmt.Errorf("list item of type %T is not a string", item)
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []string:
		return append([]string{}, x...), nil
	default:
		s, ok := scalar(v)
		if !ok {
			return nil, fmt.Errorf("value of type %T is not a string or list of strings", v)
		}
		if s == "" {
			return []string{}, nil
		}
		return []string{s}, nil
	}
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

func str(v any) string {
	s, _ := scalar(v)
	if _, isBool := v.(bool); isBool {
		return ""
	}
	return s
}

func firstString(vals ...any) string {
	for _, v := range vals {
		if s := str(v); s != "" {
			return s
		}
	}
	return ""
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// strList reads a string or a list of scalars; other shapes yield nil.
func strList(v any) []string {
	vals, err := filterValues(v)
	if err != nil {
		return nil
	}
	return vals
}

func intOf(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), x == float64(int(x))
	case int:
		return x, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		return i, err == nil
	}
	return 0, false
}

func idString(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return strings.TrimSpace(x)
	}
	return ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

type warnings struct {
	list []string
	seen map[string]bool
}

func (w *warnings) add(msg string) {
	if w.seen[msg] {
		return
	}
	w.seen[msg] = true
	w.list = append(w.list, msg)
}
