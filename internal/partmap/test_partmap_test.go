package partmap

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"km24vejviser/internal/km24/km24test"
)

func TestMapFiltersCaseInsensitive(t *testing.T) {
	fake := km24test.WithModules()
	m := NewMapper(fake, Options{})
	ctx := context.Background()

	parts, warnings := m.MapFilters(ctx, 110, map[string][]string{
		"kommune": {"Aarhus"},
		"PROBLEM": {"Asbest"},
	})
	assert.Empty(t, warnings)
	assert.Equal(t, []Part{
		{ModulePartID: 205, Values: []string{"Asbest"}},
		{ModulePartID: 2, Values: []string{"Aarhus"}},
	}, parts)

	parts, warnings = m.MapFilters(ctx, 110, map[string][]string{
		"Kommune":  {"Aarhus"},
		"Problem":  {"Asbest"},
		"Branche":  {"41.20"},
		"Reaktion": {},
	})
	assert.Len(t, parts, 2)
	assert.Equal(t, []string{"Unknown filter 'Branche' for module 110"}, warnings)

	assert.Equal(t, 1, fake.Calls("/modules/basic/110"), "part table is cached per module")
}

func TestMapFiltersEmptyAndFetchFailure(t *testing.T) {
	fake := km24test.WithModules()
	m := NewMapper(fake, Options{})

	parts, warnings := m.MapFilters(context.Background(), 110, nil)
	assert.Empty(t, parts)
	assert.Empty(t, warnings)
	assert.Zero(t, fake.Calls("/modules/basic/110"))

	parts, warnings = m.MapFilters(context.Background(), 999, map[string][]string{"Kommune": {"Aarhus"}})
	assert.Empty(t, parts)
	require.Len(t, warnings, 1)
	assert.True(t, strings.HasPrefix(warnings[0], "Could not fetch module 999 parts:"), warnings[0])
}

func TestValidateFilterNamesAndPartID(t *testing.T) {
	m := NewMapper(km24test.WithModules(), Options{})
	ctx := context.Background()

	assert.Equal(t, map[string]bool{"ejendomstype": true, "Beløb": true, "Kommune": true, "Branche": false},
		m.ValidateFilterNames(ctx, 120, []string{"ejendomstype", "Beløb", "Kommune", "Branche"}))
	assert.Equal(t, map[string]bool{"Kommune": false}, m.ValidateFilterNames(ctx, 999, []string{"Kommune"}))

	id, ok := m.PartID(ctx, 130, "medie")
	require.True(t, ok)
	assert.Equal(t, 401, id)
	_, ok = m.PartID(ctx, 130, "Kommune")
	assert.False(t, ok)
}

func TestStepJSONShape(t *testing.T) {
	g := NewStepGenerator(NewMapper(km24test.WithModules(), Options{}), nil)
	step, warnings := g.Generate(context.Background(), StepInput{
		ModuleID: 110,
		Filters:  map[string][]string{"Problem": {"Asbest"}},
	})
	assert.Empty(t, warnings)

	raw, err := json.Marshal(step)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Step for module 110","moduleId":110,"lookbackDays":30,
		"onlyActive":false,"onlySubscribed":false,"parts":[{"modulePartId":205,"values":["Asbest"]}]}`, string(raw))

	step = Build(StepInput{Title: "Konkurser", ModuleID: 160, LookbackDays: 7}, nil)
	raw, err = json.Marshal(step)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Konkurser","moduleId":160,"lookbackDays":7,
		"onlyActive":false,"onlySubscribed":false,"parts":[]}`, string(raw))
}

func TestBatchSkipsStepsWithoutModule(t *testing.T) {
	g := NewStepGenerator(NewMapper(km24test.WithModules(), Options{}), nil)
	steps, warnings := g.Batch(context.Background(), []StepInput{
		{Title: "Arbejdstilsyn", ModuleID: 110, Filters: map[string][]string{"Reaktion": {"Forbud"}}},
		{Title: "Uden modul"},
		{Title: "Tinglysning", ModuleID: 120, Filters: map[string][]string{"Ejerform": {"A/S"}}},
	})
	require.Len(t, steps, 2)
	assert.Equal(t, "Arbejdstilsyn", steps[0].Name)
	assert.Equal(t, []Part{{ModulePartID: 204, Values: []string{"Forbud"}}}, steps[0].Parts)
	assert.Empty(t, steps[1].Parts)
	assert.Equal(t, []string{
		"Step 'Uden modul' missing module_id, skipped",
		"Unknown filter 'Ejerform' for module 120",
	}, warnings)
}

func TestCurlCommand(t *testing.T) {
	step := Build(StepInput{Title: "Byg'ning", ModuleID: 110}, []Part{{ModulePartID: 205, Values: []string{"Asbest"}}})
	got, err := CurlCommand(step, "")
	require.NoError(t, err)

	want := `curl -X POST https://km24.dk/api/steps/main \
  -H "X-API-Key: YOUR_API_KEY" \
  -H "Content-Type: application/json" \
  -d '{
  "name": "Byg'\''ning",
  "moduleId": 110,
  "lookbackDays": 30,
  "onlyActive": false,
  "onlySubscribed": false,
  "parts": [
    {
      "modulePartId": 205,
      "values": [
        "Asbest"
      ]
    }
  ]
}'`
	assert.Equal(t, want, got)
}
