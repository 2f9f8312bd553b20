package filters

import (
	_ "embed"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed buckets.yaml
var bucketsYAML []byte

type scoreBucket struct {
	Key   string   `yaml:"key"`
	Terms []string `yaml:"terms"`
}

var scoreBuckets = func() []scoreBucket {
	var b []scoreBucket
	if err := yaml.Unmarshal(bucketsYAML, &b); err != nil {
		panic(err)
	}
	return b
}()

// SemanticScore ranks candidate text against a lower-cased goal. Each bucket
// with overlapping terms adds 0.4 + 0.2*min(hits, 3); each distinct goal
// token longer than four letters found in the text adds 0.1. The result is
// unbounded and only meaningful as an ordering.
func SemanticScore(goalLower, text string) float64 {
	if goalLower == "" || text == "" {
		return 0
	}
	t := strings.ToLower(text)
	score := 0.0
	for _, b := range scoreBuckets {
		hits := 0
		for _, term := range b.Terms {
			if strings.Contains(goalLower, term) && strings.Contains(t, term) {
				hits++
			}
		}
		if hits > 0 {
			score += 0.4 + 0.2*float64(min(hits, 3))
		}
	}
	seen := map[string]bool{}
	for _, tok := range strings.Fields(goalLower) {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if utf8.RuneCountInString(tok) > 4 && strings.Contains(t, tok) {
			score += 0.1
		}
	}
	return score
}
