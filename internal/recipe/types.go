package recipe

import "encoding/json"

// Canonical notification cadences.
const (
	NotifyInstant = "instant"
	NotifyDaily   = "daily"
	NotifyWeekly  = "weekly"
)

// Recipe is the investigation plan returned to callers. It is produced by
// Normalizer.Normalize and must not be changed once Validate accepts it,
// apart from the enrichment and step-JSON stages that run before that.
type Recipe struct {
	Overview                Overview            `json:"overview"`
	Scope                   Scope               `json:"scope"`
	Monitoring              Monitoring          `json:"monitoring"`
	HitBudget               HitBudget           `json:"hit_budget"`
	Notifications           Notifications       `json:"notifications"`
	ParallelProfile         ParallelProfile     `json:"parallel_profile"`
	Steps                   []Step              `json:"steps"`
	CrossRefs               []CrossRef          `json:"cross_refs"`
	SyntaxGuide             SyntaxGuide         `json:"syntax_guide"`
	Quality                 Quality             `json:"quality"`
	Artifacts               Artifacts           `json:"artifacts"`
	NextLevelQuestions      []string            `json:"next_level_questions"`
	PotentialStoryAngles    []string            `json:"potential_story_angles"`
	CreativeCrossReferences []string            `json:"creative_cross_references"`
	EducationalContent      *EducationalContent `json:"educational_content,omitempty"`
	Context                 *ContextBlock       `json:"context,omitempty"`
	AIAssessment            *AIAssessment       `json:"ai_assessment,omitempty"`
	ValidationWarnings      []string            `json:"validation_warnings,omitempty"`
}

type Overview struct {
	Title             string   `json:"title"`
	StrategySummary   string   `json:"strategy_summary"`
	CreativeApproach  string   `json:"creative_approach"`
	ModuleFlow        []string `json:"module_flow"`
	EstimatedDuration string   `json:"estimated_duration"`
}

type Scope struct {
	PrimaryFocus   string   `json:"primary_focus"`
	SecondaryAreas []string `json:"secondary_areas"`
	Exclusions     []string `json:"exclusions"`
	Limitations    []string `json:"limitations"`
}

// Monitoring.Type is one of keywords, cvr or mixed.
type Monitoring struct {
	Type       string   `json:"type"`
	Frequency  string   `json:"frequency"`
	Alerts     []string `json:"alerts"`
	Escalation string   `json:"escalation,omitempty"`
}

type HitBudget struct {
	ExpectedHits         string         `json:"expected_hits"`
	BudgetAllocation     map[string]int `json:"budget_allocation"`
	ResourceRequirements []string       `json:"resource_requirements"`
}

type Notifications struct {
	Primary    string   `json:"primary"`
	Secondary  string   `json:"secondary,omitempty"`
	Escalation string   `json:"escalation,omitempty"`
	Channels   []string `json:"channels"`
}

type ParallelProfile struct {
	MaxConcurrent int           `json:"max_concurrent"`
	Dependencies  map[int][]int `json:"dependencies"`
	CriticalPath  []int         `json:"critical_path"`
}

// ModuleRef points at a KM24 module. ID is empty when the name could not be
// resolved against the module list.
type ModuleRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsWebSource bool   `json:"is_web_source"`
}

// APIBlock carries the platform-ready request for a step.
type APIBlock struct {
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Body        json.RawMessage   `json:"body,omitempty"`
	ExampleCurl string            `json:"example_curl,omitempty"`
}

type Guardrails struct {
	MaxHits         *int     `json:"max_hits,omitempty"`
	MinAmount       *float64 `json:"min_amount,omitempty"`
	MaxAmount       *float64 `json:"max_amount,omitempty"`
	RequiredFilters []string `json:"required_filters"`
	Warnings        []string `json:"warnings"`
}

type StepEducational struct {
	Principle          string            `json:"principle,omitempty"`
	FilterExplanations map[string]string `json:"filter_explanations"`
	QualityChecklist   []string          `json:"quality_checklist"`
	CommonMistakes     []string          `json:"common_mistakes"`
	RedFlags           []string          `json:"red_flags"`
	ActionPlan         string            `json:"action_plan,omitempty"`
	ExampleHit         string            `json:"example_hit,omitempty"`
	WhatCountsAsHit    string            `json:"what_counts_as_hit,omitempty"`
	WhyThisStep        string            `json:"why_this_step,omitempty"`
}

type Step struct {
	StepNumber       int                 `json:"step_number"`
	Title            string              `json:"title"`
	Type             string              `json:"type"`
	Module           ModuleRef           `json:"module"`
	Rationale        string              `json:"rationale"`
	SearchString     string              `json:"search_string"`
	Filters          map[string][]string `json:"filters"`
	Notification     string              `json:"notification"`
	Delivery         string              `json:"delivery"`
	API              *APIBlock           `json:"api,omitempty"`
	Guardrails       Guardrails          `json:"guardrails"`
	SourceSelection  []string            `json:"source_selection"`
	StrategicNote    string              `json:"strategic_note,omitempty"`
	Explanation      string              `json:"explanation"`
	CreativeInsights string              `json:"creative_insights,omitempty"`
	AdvancedTactics  string              `json:"advanced_tactics,omitempty"`
	Educational      *StepEducational    `json:"educational,omitempty"`
}

type CrossRef struct {
	FromStep     int    `json:"from_step"`
	ToStep       int    `json:"to_step"`
	Relationship string `json:"relationship"`
	Rationale    string `json:"rationale"`
}

type SyntaxGuide struct {
	BasicSyntax    []string `json:"basic_syntax"`
	AdvancedSyntax []string `json:"advanced_syntax"`
	Tips           []string `json:"tips"`
}

type Quality struct {
	Checks          []string `json:"checks"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

func (q Quality) empty() bool {
	return len(q.Checks) == 0 && len(q.Warnings) == 0 && len(q.Recommendations) == 0
}

// Artifacts.Exports only holds csv, json or xlsx.
type Artifacts struct {
	Exports        []string `json:"exports"`
	Reports        []string `json:"reports"`
	Visualizations []string `json:"visualizations"`
}

type EducationalContent struct {
	SyntaxGuide     string            `json:"syntax_guide"`
	CommonPitfalls  string            `json:"common_pitfalls"`
	Troubleshooting string            `json:"troubleshooting"`
	KM24Principles  map[string]string `json:"km24_principles"`
}

type ContextBlock struct {
	Background   string   `json:"background"`
	WhatToExpect string   `json:"what_to_expect"`
	Caveats      []string `json:"caveats"`
	Coverage     string   `json:"coverage"`
}

type AIAssessment struct {
	SearchPlanSummary string   `json:"search_plan_summary"`
	LikelySignals     []string `json:"likely_signals"`
	QualityChecks     []string `json:"quality_checks"`
}

// ToMap converts r back into the loosely typed shape Normalize accepts.
func (r *Recipe) ToMap() (map[string]any, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
