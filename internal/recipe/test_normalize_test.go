package recipe

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"km24vejviser/internal/km24"
)

type mapResolver map[string]km24.Module

func (m mapResolver) Module(name string) (km24.Module, bool) {
	if mod, ok := m[name]; ok {
		return mod, true
	}
	for title, mod := range m {
		if strings.EqualFold(title, name) {
			return mod, true
		}
	}
	return km24.Module{}, false
}

func generatorOutput() map[string]any {
	return map[string]any{
		"title":            "Landbrugsopkøb i Østjylland",
		"strategy_summary": "Følg kapitalfonde der køber landbrugsjord",
		"investigation_steps": []any{
			map[string]any{"step": 1.0, "title": "Nye selskaber", "module": "Registrering",
				"details": map[string]any{"search_string": "landbrug OR agriculture", "recommended_notification": "løbende"}},
			map[string]any{"step": 2.0, "title": "Handler", "module": "Tinglysning",
				"details": map[string]any{"search_string": "\"landbrugsejendom\"", "recommended_notification": "interval"}},
			map[string]any{"step": 3.0, "title": "Konkurser", "module": "Status",
				"details": map[string]any{"recommended_notification": "løbende"}},
			map[string]any{"step": 4.0, "title": "Lokalplaner", "module": "Lokalpolitik",
				"details": map[string]any{"search_string": "lokalplan", "recommended_notification": "LØBENDE"}},
		},
		"next_level_questions":   []any{"Hvem står bag opkøbene?"},
		"potential_story_angles": []any{"Kapitalfonde overtager dansk landbrug"},
		"quality":                map[string]any{"checks": []any{"Tjek ejerforhold i CVR"}},
	}
}

func TestNormalizeGeneratorOutput(t *testing.T) {
	r, err := NewNormalizer(nil, nil).Normalize(generatorOutput(), "Kortlæg opkøb af landbrugsjord")
	require.NoError(t, err)
	require.Len(t, r.Steps, 4)

	var notifs []string
	for i, s := range r.Steps {
		assert.Equal(t, i+1, s.StepNumber)
		notifs = append(notifs, s.Notification)
	}
	assert.Equal(t, []string{NotifyInstant, NotifyWeekly, NotifyInstant, NotifyInstant}, notifs)

	assert.Equal(t, "landbrug;landbrugsvirksomhed;agriculture", r.Steps[0].SearchString)
	assert.Equal(t, "~landbrugsejendom~", r.Steps[1].SearchString)
	assert.Equal(t, "lokalplan;landzone;kommunal;politisk", r.Steps[3].SearchString)

	assert.True(t, r.Steps[3].Module.IsWebSource)
	assert.Equal(t, []string{"Aarhus", "København", "Odense", "Aalborg"}, r.Steps[3].SourceSelection)
	assert.Empty(t, r.Steps[0].SourceSelection)

	assert.Equal(t, "Landbrugsopkøb i Østjylland", r.Overview.Title)
	assert.Equal(t, []string{"Registrering", "Tinglysning", "Status", "Lokalpolitik"}, r.Overview.ModuleFlow)
	assert.Equal(t, "Kortlæg opkøb af landbrugsjord", r.Scope.PrimaryFocus)
	assert.Equal(t, NotifyDaily, r.Notifications.Primary)
	assert.Equal(t, 3, r.ParallelProfile.MaxConcurrent)
	assert.Equal(t, "email", r.Steps[0].Delivery)
	assert.Empty(t, r.ValidationWarnings)

	assert.Empty(t, Validate(r))
}

func TestNormalizeResolvesModules(t *testing.T) {
	resolver := mapResolver{
		"Tinglysning": {ID: 120, Title: "Tinglysning"},
		"Danske medier": {ID: 130, Title: "Danske medier", Parts: []km24.Part{
			{ID: 401, Part: km24.PartWebSource, Name: "Medie"},
		}},
	}
	raw := map[string]any{"steps": []any{
		map[string]any{"module": "tinglysning"},
		map[string]any{"module": map[string]any{"name": "Danske medier", "id": "7"}, "source_selection": []any{"DR"}},
		map[string]any{"module": "Opdigtet"},
	}}
	r, err := NewNormalizer(resolver, nil).Normalize(raw, "")
	require.NoError(t, err)

	assert.Equal(t, ModuleRef{ID: "120", Name: "Tinglysning"}, r.Steps[0].Module)
	assert.Equal(t, ModuleRef{ID: "130", Name: "Danske medier", IsWebSource: true}, r.Steps[1].Module)
	assert.Equal(t, []string{"DR"}, r.Steps[1].SourceSelection)
	assert.Equal(t, ModuleRef{Name: "Opdigtet"}, r.Steps[2].Module)

	assert.Contains(t, Validate(r), "Step 3: unknown module 'Opdigtet'")
}

func TestNormalizeNotificationTokens(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{"løbende", NotifyInstant, true},
		{"LØBENDE", NotifyInstant, true},
		{"øjeblikkelig", NotifyInstant, true},
		{" Interval ", NotifyWeekly, true},
		{"periodisk", NotifyWeekly, true},
		{"daglig", NotifyDaily, true},
		{"weekly", NotifyWeekly, true},
		{"", NotifyDaily, true},
		{nil, NotifyDaily, true},
		{"hver time", NotifyDaily, false},
		{5.0, NotifyDaily, false},
	}
	for _, tc := range cases {
		got, ok := NormalizeNotification(tc.in)
		assert.Equal(t, tc.want, got, "%v", tc.in)
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
	}
}

func TestNormalizeUnknownNotificationWarns(t *testing.T) {
	raw := generatorOutput()
	steps := raw["investigation_steps"].([]any)
	steps[2].(map[string]any)["details"].(map[string]any)["recommended_notification"] = "hver time"

	r, err := NewNormalizer(nil, nil).Normalize(raw, "")
	require.NoError(t, err)
	assert.Equal(t, NotifyDaily, r.Steps[2].Notification)
	assert.Equal(t, []string{"Step 3: unknown notification 'hver time', using daily"}, r.ValidationWarnings)
}

func TestNormalizeUnknownPrimaryNotificationWarns(t *testing.T) {
	raw := generatorOutput()
	raw["notifications"] = map[string]any{"primary": "hver time", "secondary": "interval"}

	r, err := NewNormalizer(nil, nil).Normalize(raw, "")
	require.NoError(t, err)
	assert.Equal(t, NotifyDaily, r.Notifications.Primary)
	assert.Equal(t, NotifyWeekly, r.Notifications.Secondary)
	assert.Equal(t, []string{"Notifications: unknown primary 'hver time', using daily"}, r.ValidationWarnings)
}

func TestPrimaryFocusTruncation(t *testing.T) {
	exact := strings.Repeat("ø", MaxFocusLen)
	assert.Equal(t, exact, PrimaryFocus(exact))

	long := exact + "x"
	assert.Equal(t, exact+"...", PrimaryFocus(long))

	r, err := NewNormalizer(nil, nil).Normalize(map[string]any{"scope": map[string]any{"primary_focus": "kept"}}, "")
	require.NoError(t, err)
	assert.Equal(t, "kept", r.Scope.PrimaryFocus)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := generatorOutput()
	raw["cross_refs"] = []any{map[string]any{"from_step": 1.0, "to_step": 2.0, "relationship": "cvr"}}
	raw["artifacts"] = map[string]any{"exports": []any{"CSV", "pdf"}}
	steps := raw["investigation_steps"].([]any)
	steps[1].(map[string]any)["filters"] = map[string]any{"Kommune": "Aarhus", "Beløb": 1000000.0}
	steps[2].(map[string]any)["details"].(map[string]any)["recommended_notification"] = "hver time"

	n := NewNormalizer(nil, nil)
	first, err := n.Normalize(raw, strings.Repeat("a", 120))
	require.NoError(t, err)
	assert.Equal(t, []string{"csv"}, first.Artifacts.Exports)
	assert.Equal(t, map[string][]string{"Kommune": {"Aarhus"}, "Beløb": {"1000000"}}, first.Steps[1].Filters)
	assert.Len(t, first.ValidationWarnings, 2)

	m, err := first.ToMap()
	require.NoError(t, err)
	second, err := n.Normalize(m, "")
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("normalize is not idempotent (-first +second):\n%s", diff)
	}
}

func TestNormalizeRejectsNestedFilterValues(t *testing.T) {
	raw := map[string]any{"steps": []any{
		map[string]any{"module": "Status", "filters": map[string]any{"Kommune": map[string]any{"x": 1.0}}},
	}}
	_, err := NewNormalizer(nil, nil).Normalize(raw, "")
	var nerr *NormalizeError
	require.True(t, errors.As(err, &nerr), "got %v", err)
	assert.Equal(t, 1, nerr.Step)
	assert.Equal(t, "filters.Kommune", nerr.Field)
}

func TestNormalizeEmptyInput(t *testing.T) {
	r, err := NewNormalizer(nil, nil).Normalize(nil, "")
	require.NoError(t, err)
	assert.NotNil(t, r.Steps)
	assert.Equal(t, []string{
		"Mangler sektion: next_level_questions",
		"Mangler sektion: potential_story_angles",
		"Mangler sektion: quality",
		"Pipeline must have at least 3 steps (has 0)",
	}, Validate(r))
}
