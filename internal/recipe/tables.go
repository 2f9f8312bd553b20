package recipe

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesYAML []byte

type searchRule struct {
	Contains string   `yaml:"contains"`
	Replace  string   `yaml:"replace"`
	Append   []string `yaml:"append"`
}

type tableFile struct {
	Notifications    map[string][]string     `yaml:"notifications"`
	DefaultSources   map[string][]string     `yaml:"default_sources"`
	WebSourceModules []string                `yaml:"web_source_modules"`
	KnownModules     []string                `yaml:"known_modules"`
	InstantModules   []string                `yaml:"instant_modules"`
	RequiredSections []string                `yaml:"required_sections"`
	ExportFormats    []string                `yaml:"export_formats"`
	SearchRules      map[string][]searchRule `yaml:"search_rules"`
}

type lookupTables struct {
	tableFile
	notification map[string]string
	webSource    map[string]bool
	known        map[string]bool
	exports      map[string]bool
	instant      map[string]bool
}

var tables = func() lookupTables {
	var tf tableFile
	if err := yaml.Unmarshal(tablesYAML, &tf); err != nil {
		panic(fmt.Sprintf("recipe: embedded tables: %v", err))
	}
	t := lookupTables{
		tableFile:    tf,
		notification: map[string]string{},
		webSource:    lowerSet(tf.WebSourceModules),
		known:        lowerSet(tf.KnownModules),
		exports:      lowerSet(tf.ExportFormats),
		instant:      lowerSet(tf.InstantModules),
	}
	for canonical, tokens := range tf.Notifications {
		for _, tok := range tokens {
			t.notification[strings.ToLower(tok)] = canonical
		}
	}
	return t
}()

func lowerSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[strings.ToLower(s)] = true
	}
	return m
}

// NormalizeNotification maps a locale notification token to instant, daily
// or weekly. Missing values become daily. ok is false for unrecognised
// tokens, which also become daily.
func NormalizeNotification(v any) (canonical string, ok bool) {
	s, isString := v.(string)
	if v != nil && !isString {
		return NotifyDaily, false
	}
	c, found := tables.notification[strings.ToLower(strings.TrimSpace(s))]
	if !found {
		return NotifyDaily, false
	}
	return c, true
}

// DefaultSources returns the source list injected for a web-source module,
// or an empty list when the module has none.
func DefaultSources(module string) []string {
	for name, src := range tables.DefaultSources {
		if strings.EqualFold(name, module) {
			return append([]string(nil), src...)
		}
	}
	return []string{}
}

// IsWebSourceModule reports whether module is on the static list of modules
// that require a source selection.
func IsWebSourceModule(module string) bool {
	return tables.webSource[strings.ToLower(strings.TrimSpace(module))]
}

// IsKnownModule reports whether module is on the static module whitelist.
func IsKnownModule(module string) bool {
	return tables.known[strings.ToLower(strings.TrimSpace(module))]
}

// RecommendNotification suggests a cadence for module: instant for
// time-critical registers, weekly otherwise.
func RecommendNotification(module string) string {
	if tables.instant[strings.ToLower(strings.TrimSpace(module))] {
		return NotifyInstant
	}
	return NotifyWeekly
}
