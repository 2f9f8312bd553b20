package recipe

import (
	"regexp"
	"strings"
)

var (
	quotedRe    = regexp.MustCompile(`"([^"]+)"`)
	hyphenRe    = regexp.MustCompile(`([\p{L}\p{N}])-([\p{L}\p{N}])`)
	semicolonRe = regexp.MustCompile(`\s*;[;\s]*`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// ImproveSyntax applies the module-independent KM24 search rewrites:
// quoted phrases become ~phrase~, hyphenated variations become
// alternatives, repeated semicolons and whitespace collapse. Boolean
// operators are left untouched.
func ImproveSyntax(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = quotedRe.ReplaceAllString(s, "~$1~")
	// Applied twice so chains like a-b-c split fully.
	s = hyphenRe.ReplaceAllString(s, "$1;$2")
	s = hyphenRe.ReplaceAllString(s, "$1;$2")
	s = semicolonRe.ReplaceAllString(s, ";")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.Trim(s, "; ")
}

// StandardizeSearchString rewrites a search string for module: general
// syntax improvements first, then the module's declarative rules.
// Applying it twice gives the same result as applying it once.
func StandardizeSearchString(s, module string) string {
	s = ImproveSyntax(s)
	if s == "" {
		return ""
	}
	var rules []searchRule
	for name, r := range tables.SearchRules {
		if strings.EqualFold(name, strings.TrimSpace(module)) {
			rules = r
			break
		}
	}
	lower := strings.ToLower(s)
	for _, r := range rules {
		switch {
		case r.Contains != "":
			if strings.Contains(lower, r.Contains) {
				return r.Replace
			}
		case len(r.Append) > 0:
			return appendTerms(s, r.Append)
		}
	}
	return s
}

func appendTerms(s string, terms []string) string {
	have := map[string]bool{}
	for _, t := range strings.Split(strings.ToLower(s), ";") {
		have[strings.TrimSpace(t)] = true
	}
	var b strings.Builder
	b.WriteString(s)
	for _, t := range terms {
		if have[strings.ToLower(t)] {
			continue
		}
		b.WriteByte(';')
		b.WriteString(t)
	}
	return b.String()
}
