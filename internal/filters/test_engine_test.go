package filters

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"km24vejviser/internal/catalog"
	"km24vejviser/internal/km24/km24test"
	"km24vejviser/internal/knowledge"
)

const asbestGoal = "Undersøg alvorlige asbest-sager i Esbjerg"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	fake := km24test.WithModules()
	cat := catalog.New(fake, catalog.Options{})
	cat.LoadAll(context.Background(), false)
	kb := knowledge.NewBase(fake, knowledge.Options{})
	require.True(t, kb.Load(context.Background(), false).Success)
	return NewEngine(cat, kb, nil)
}

func findByType(recs []Recommendation, filterType string) []Recommendation {
	var out []Recommendation
	for _, r := range recs {
		if r.FilterType == filterType {
			out = append(out, r)
		}
	}
	return out
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func TestRecommendAsbestosInEsbjerg(t *testing.T) {
	e := newTestEngine(t)
	recs := e.Recommend(asbestGoal, []string{"Arbejdstilsyn", "Danske medier"})

	web := findByType(recs, "web_source")
	require.Len(t, web, 1)
	assert.Contains(t, web[0].Values, "JydskeVestkysten")
	assert.Contains(t, web[0].Values, "Esbjerg Ugeavis")

	problem := findByType(recs, "problem")
	require.Len(t, problem, 1, "asbestos must be suggested exactly once")
	assert.True(t, containsFold(problem[0].Values, "asbest"))
	assert.Equal(t, 110, problem[0].ModuleID)
	assert.Equal(t, 205, problem[0].ModulePartID)

	require.Len(t, recs, 3)
	assert.Equal(t, []float64{ScoreKnowledge, ScoreLocalMedia, ScoreMunicipality},
		[]float64{recs[0].RelevanceScore, recs[1].RelevanceScore, recs[2].RelevanceScore})
	assert.Equal(t, []string{"Esbjerg", "Herning"}, recs[2].Values)
}

func TestRecommendAsbestosFallbackWithoutKnowledge(t *testing.T) {
	e := NewEngine(nil, nil, nil)
	recs := e.Recommend("asbest på skoler", nil)
	require.Len(t, recs, 1)
	assert.Equal(t, "problem", recs[0].FilterType)
	assert.Equal(t, []string{"Asbest"}, recs[0].Values)
	assert.Equal(t, ScoreAsbestos, recs[0].RelevanceScore)
}

func TestRecommendScopedToSelectedModules(t *testing.T) {
	e := newTestEngine(t)
	recs := e.Recommend(asbestGoal, []string{"Tinglysning"})
	for _, r := range recs {
		assert.NotEqual(t, ScoreKnowledge, r.RelevanceScore)
	}
	// The hard-wired asbestos case still fires.
	assert.Len(t, findByType(recs, "problem"), 1)
}

func TestRecommendWithValuesAddsLiveGenericValues(t *testing.T) {
	e := newTestEngine(t)
	recs := e.RecommendWithValues(context.Background(), asbestGoal, []string{"Arbejdstilsyn", "Danske medier", "Ukendt"})

	require.NotEmpty(t, recs)
	top := recs[0]
	assert.Equal(t, ScoreLiveValues, top.RelevanceScore)
	assert.Equal(t, "problem", top.FilterType)
	assert.Equal(t, []string{"Asbest"}, top.Values)
	assert.Equal(t, 205, top.ModulePartID)
	assert.Empty(t, findByType(recs, "reaction"))
}

func TestModuleSpecificArbejdstilsyn(t *testing.T) {
	e := newTestEngine(t)
	recs := e.ModuleSpecific(context.Background(), asbestGoal, "Arbejdstilsyn")
	require.Len(t, recs, 4)

	assert.Equal(t, "reaction", recs[0].FilterType)
	assert.Equal(t, []string{"Forbud", "Strakspåbud", "Vejledning"}, recs[0].Values)
	assert.Equal(t, 0.7, recs[0].RelevanceScore)

	assert.Equal(t, "problem", recs[1].FilterType)
	assert.Equal(t, []string{"Asbest"}, recs[1].Values)
	assert.Equal(t, 0.9, recs[1].RelevanceScore)

	assert.Equal(t, []string{"Forbud", "Strakspåbud"}, recs[2].Values)
	assert.Equal(t, "Reaktion", recs[2].PartName)
	assert.Equal(t, []string{"Asbest"}, recs[3].Values)
}

func TestModuleSpecificTinglysning(t *testing.T) {
	e := newTestEngine(t)
	recs := e.ModuleSpecific(context.Background(), "Ejendomshandler i Aarhus", "Tinglysning")
	require.Len(t, recs, 2)
	assert.Equal(t, "property_types", recs[0].FilterType)
	assert.Equal(t, []string{"Erhvervsejendom", "Landbrugsejendom"}, recs[0].Values)
	assert.Equal(t, "Ejendomstype", recs[1].PartName)
}

func TestModuleSpecificWebSources(t *testing.T) {
	e := newTestEngine(t)
	recs := e.ModuleSpecific(context.Background(), "medier", "Danske medier")
	web := findByType(recs, "web_sources")
	require.Len(t, web, 1)
	assert.Equal(t, []string{"DR", "TV2", "JydskeVestkysten"}, web[0].Values)
}

func TestSemanticScore(t *testing.T) {
	assert.InDelta(t, 1.2, SemanticScore("korruption og bestikkelse i kommunen", "Bestikkelse og korruption"), 1e-9)
	assert.InDelta(t, 0.6, SemanticScore("asbest-sager", "Asbest i bygninger"), 1e-9)
	assert.Zero(t, SemanticScore("", "Asbest"))
	assert.Zero(t, SemanticScore("støj", "Asbest"))
}

func TestNormalizedFilterType(t *testing.T) {
	cases := map[string]string{
		"Gerningskode": "crime_codes",
		"Branche":      "branch_codes",
		"Problem":      "problem",
		"Reaktion":     "reaction",
		"Ejendomstype": "property_types",
		"Kommune":      "",
		"":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizedFilterType(in), in)
	}
}
