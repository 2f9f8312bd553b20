// Package enrich attaches educational material and practical advice to a
// normalized recipe. All texts come from an embedded content library.
package enrich

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var contentYAML []byte

type Principle struct {
	Key         string `yaml:"key" json:"key"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	WhenToApply string `yaml:"when_to_apply" json:"when_to_apply"`
}

type PowerTip struct {
	Title       string `yaml:"title" json:"title"`
	Explanation string `yaml:"explanation" json:"explanation"`
}

type Supplement struct {
	Module string `json:"module"`
	Reason string `json:"reason"`
}

type condition struct {
	Filter string   `yaml:"filter"`
	AnyOf  []string `yaml:"any_of"`
}

type flagRule struct {
	When  *condition `yaml:"when"`
	Flags []string   `yaml:"flags"`
}

type exampleHit struct {
	Filter  string `yaml:"filter"`
	Default string `yaml:"default"`
	Text    string `yaml:"text"`
}

type supplementRule struct {
	Keywords []string `yaml:"keywords"`
	Module   string   `yaml:"module"`
	Reason   string   `yaml:"reason"`
}

type contentFile struct {
	Sections         map[string]string     `yaml:"sections"`
	Principles       []Principle           `yaml:"principles"`
	HitlogikTriggers []string              `yaml:"hitlogik_triggers"`
	Checklists       map[string][]string   `yaml:"checklists"`
	RedFlags         map[string][]flagRule `yaml:"red_flags"`
	ActionPlans      struct {
		Instant  []string            `yaml:"instant"`
		Periodic []string            `yaml:"periodic"`
		Modules  map[string][]string `yaml:"modules"`
		Final    string              `yaml:"final"`
	} `yaml:"action_plans"`
	ExampleHits map[string]exampleHit `yaml:"example_hits"`
	PowerTips   struct {
		Semicolon PowerTip            `yaml:"semicolon"`
		Modules   map[string]PowerTip `yaml:"modules"`
	} `yaml:"power_tips"`
	SupplementaryModules []supplementRule `yaml:"supplementary_modules"`
	SourceWarning        string           `yaml:"source_warning"`
	GeoKeywords          []string         `yaml:"geo_keywords"`
	GeoAdvice            string           `yaml:"geo_advice"`
}

// Library is read-only after construction and safe for concurrent use.
type Library struct {
	c contentFile
}

// LoadLibrary parses a content document in the layout of the embedded one.
func LoadLibrary(raw []byte) (*Library, error) {
	var c contentFile
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse content library: %w", err)
	}
	return &Library{c: c}, nil
}

var defaultLibrary = func() *Library {
	l, err := LoadLibrary(contentYAML)
	if err != nil {
		panic(err)
	}
	return l
}()

// DefaultLibrary returns the embedded content library.
func DefaultLibrary() *Library { return defaultLibrary }

// Section returns syntax_guide, common_pitfalls or troubleshooting.
func (l *Library) Section(key string) string {
	return strings.TrimSpace(l.c.Sections[key])
}

func (l *Library) Principle(key string) (Principle, bool) {
	for _, p := range l.c.Principles {
		if p.Key == key {
			return p, true
		}
	}
	return Principle{}, false
}

func (l *Library) Principles() []Principle {
	return append([]Principle(nil), l.c.Principles...)
}

// RelevantPrinciple picks the principle key for a step: cvr_first for
// Registrering, hitlogik when the goal talks about combining things, and
// notification_strategy otherwise.
func (l *Library) RelevantPrinciple(goal, module string) string {
	if strings.EqualFold(module, "Registrering") {
		return "cvr_first"
	}
	g := strings.ToLower(goal)
	for _, t := range l.c.HitlogikTriggers {
		if strings.Contains(g, t) {
			return "hitlogik"
		}
	}
	return "notification_strategy"
}

func (l *Library) Checklist(module string) []string {
	items, _ := lookupFold(l.c.Checklists, module)
	return append([]string{}, items...)
}

// Mistakes returns the titles of the numbered pitfalls, at most limit.
func (l *Library) Mistakes(limit int) []string {
	var out []string
	for _, line := range strings.Split(l.c.Sections["common_pitfalls"], "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !unicode.IsDigit(rune(line[0])) {
			continue
		}
		if dot := strings.IndexByte(line, '.'); dot < 0 || dot > 2 {
			continue
		}
		title, _, _ := strings.Cut(line, ":")
		out = append(out, strings.TrimSpace(title))
		if len(out) == limit {
			break
		}
	}
	return out
}

// ExplainFilter describes what a filter setting does in plain Danish.
func (l *Library) ExplainFilter(name string, values []string, module string) string {
	if len(values) == 0 {
		return name + "-filteret er tomt og filtrerer ikke"
	}
	joined := strings.Join(values, ", ")
	switch strings.ToLower(name) {
	case "kommune":
		if len(values) == 1 {
			return fmt.Sprintf("Geografisk fokus: %s kommune", values[0])
		}
		return fmt.Sprintf("Geografisk fokus: %s kommuner", joined)
	case "branche":
		return fmt.Sprintf("Branchekoderne %s afgrænser til virksomheder i disse brancher", joined)
	case "problem":
		return fmt.Sprintf("Fokus på Arbejdstilsynets kritik vedrørende %s", joined)
	case "reaktion":
		return "Kun alvorlige reaktioner: " + joined
	case "statustype":
		return "Virksomheder der skifter status til: " + joined
	case "søgeord":
		return fmt.Sprintf("Søgestrengen '%s' matcher dokumenter med disse termer", values[0])
	case "person":
		return "Overvåger personen: " + joined
	case "virksomhed":
		return fmt.Sprintf("Overvåger virksomheden med CVR %s", joined)
	case "medie":
		return fmt.Sprintf("Kun hits fra %s i %s", joined, module)
	}
	return fmt.Sprintf("%s: %s", name, joined)
}

func lookupFold[V any](m map[string]V, key string) (V, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	var zero V
	return zero, false
}
