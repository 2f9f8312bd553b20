package knowledge

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"km24vejviser/internal/km24"
)

//go:embed rules.yaml
var defaultRules []byte

type termSpec struct {
	Term     string   `yaml:"term"`
	Patterns []string `yaml:"patterns"`
}

type ruleSpec struct {
	Terms        []string `yaml:"terms"`
	PartKeywords []string `yaml:"part_keywords"`
	Confidence   float64  `yaml:"confidence"`
	Evidence     string   `yaml:"evidence"`
	SuggestTerm  bool     `yaml:"suggest_term"`
}

type ruleFile struct {
	Terms []termSpec `yaml:"terms"`
	Rules []ruleSpec `yaml:"rules"`
}

type compiledTerm struct {
	term     string
	patterns []*regexp.Regexp
}

// Extractor turns free text into domain terms and maps those terms onto a
// module's parts. The matching loop is generic; all vocabulary lives in the
// rule file.
type Extractor struct {
	terms  []compiledTerm
	rules  []ruleSpec
	byTerm map[string]int
}

// NewExtractor compiles a YAML rule file. Broken patterns are skipped.
func NewExtractor(raw []byte) (*Extractor, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse knowledge rules: %w", err)
	}
	e := &Extractor{rules: rf.Rules, byTerm: make(map[string]int)}
	for _, ts := range rf.Terms {
		ct := compiledTerm{term: strings.ToLower(strings.TrimSpace(ts.Term))}
		for _, p := range ts.Patterns {
			re, err := regexp.Compile(unicodeBoundaries(p))
			if err != nil {
				continue
			}
			ct.patterns = append(ct.patterns, re)
		}
		if ct.term == "" || len(ct.patterns) == 0 {
			continue
		}
		e.terms = append(e.terms, ct)
	}
	for i, r := range e.rules {
		for _, t := range r.Terms {
			t = strings.ToLower(t)
			if _, dup := e.byTerm[t]; !dup {
				e.byTerm[t] = i
			}
		}
	}
	return e, nil
}

var defaultExtractor = func() *Extractor {
	e, err := NewExtractor(defaultRules)
	if err != nil {
		panic(err)
	}
	return e
}()

// Default returns the extractor built from the embedded rule file.
func Default() *Extractor { return defaultExtractor }

// ExtractTerms returns the set of known domain terms found in text.
func (e *Extractor) ExtractTerms(text string) map[string]struct{} {
	out := make(map[string]struct{})
	if strings.TrimSpace(text) == "" {
		return out
	}
	haystack := strings.ToLower(text)
	for _, ct := range e.terms {
		for _, re := range ct.patterns {
			if re.MatchString(haystack) {
				out[ct.term] = struct{}{}
				break
			}
		}
	}
	return out
}

// MapTermsToParts maps each term to the first part whose name carries one of
// the rule's keywords. Terms without a rule or without a matching part are
// dropped; that is "no suggestion", not an error.
func (e *Extractor) MapTermsToParts(terms map[string]struct{}, parts []km24.Part, moduleID int) []Mapping {
	if len(terms) == 0 || len(parts) == 0 {
		return nil
	}
	var out []Mapping
	for _, term := range SortedTerms(terms) {
		idx, ok := e.byTerm[strings.ToLower(term)]
		if !ok {
			continue
		}
		rule := e.rules[idx]
		part, found := firstPartWithKeyword(parts, rule.PartKeywords)
		if !found {
			continue
		}
		m := Mapping{
			ModuleID:   moduleID,
			PartID:     int(part.ID),
			PartName:   strings.ToLower(part.Name),
			PartType:   part.Part,
			Confidence: rule.Confidence,
			Evidence:   rule.Evidence,
			Term:       term,
		}
		if rule.SuggestTerm {
			m.SuggestedValues = []string{term}
		} else {
			m.SuggestedValues = []string{}
		}
		out = append(out, m)
	}
	return out
}

func firstPartWithKeyword(parts []km24.Part, keywords []string) (km24.Part, bool) {
	for _, p := range parts {
		name := strings.ToLower(p.Name)
		for _, kw := range keywords {
			if strings.Contains(name, kw) {
				return p, true
			}
		}
	}
	return km24.Part{}, false
}

// ExtractTerms runs the default extractor.
func ExtractTerms(text string) map[string]struct{} { return defaultExtractor.ExtractTerms(text) }

// MapTermsToParts runs the default extractor.
func MapTermsToParts(terms map[string]struct{}, parts []km24.Part, moduleID int) []Mapping {
	return defaultExtractor.MapTermsToParts(terms, parts, moduleID)
}

func SortedTerms(terms map[string]struct{}) []string {
	out := make([]string, 0, len(terms))
	for t := range terms {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

const (
	wordClass    = `[\p{L}\p{N}_]`
	nonWordClass = `[^\p{L}\p{N}_]`
)

// unicodeBoundaries rewrites \b and \w so that Danish letters count as word
// characters. RE2 only treats ASCII as word characters.
func unicodeBoundaries(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		if p[i] != '\\' || i+1 >= len(p) {
			b.WriteByte(p[i])
			continue
		}
		switch p[i+1] {
		case 'w':
			b.WriteString(wordClass)
		case 'b':
			if trailingBoundary(p[i+2:]) {
				b.WriteString(`(?:` + nonWordClass + `|$)`)
			} else {
				b.WriteString(`(?:^|` + nonWordClass + `)`)
			}
		default:
			b.WriteByte(p[i])
			b.WriteByte(p[i+1])
		}
		i++
	}
	return b.String()
}

func trailingBoundary(rest string) bool {
	if rest == "" {
		return true
	}
	switch rest[0] {
	case '.', ')', '|', '$', '*', '+', '?':
		return true
	}
	return false
}
