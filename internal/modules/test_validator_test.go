package modules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"km24vejviser/internal/km24"
	"km24vejviser/internal/km24/km24test"
)

func newValidator() *Validator {
	return NewValidator(km24test.WithModules(), nil)
}

func TestValidateModulesPartitionsNames(t *testing.T) {
	v := newValidator()
	res := v.ValidateModules(context.Background(), []string{"Arbejdstilsyn", "danske-medier", "", "Arbejdstilsynet", "Fodbold"})

	assert.Equal(t, []string{"Arbejdstilsyn", "danske-medier"}, res.Valid)
	assert.Equal(t, []string{"Arbejdstilsynet", "Fodbold"}, res.Invalid)
	assert.Equal(t, 5, res.TotalChecked)
	assert.Empty(t, res.Error)

	sugg := res.Suggestions["Arbejdstilsynet"]
	require.NotEmpty(t, sugg)
	assert.Equal(t, "Arbejdstilsyn", sugg[0].ModuleTitle)
	assert.Equal(t, 1.0, sugg[0].Confidence)
	assert.Equal(t, "Almost exact match with module name", sugg[0].MatchReason)
	assert.LessOrEqual(t, len(res.Suggestions["Fodbold"]), DefaultLimit)
	for _, s := range res.Suggestions["Fodbold"] {
		assert.Greater(t, s.Confidence, MinSimilarity)
	}
}

func TestValidateModulesWithoutModuleList(t *testing.T) {
	v := NewValidator(km24test.New().Fail("/modules/basic", km24.ErrAuth), nil)
	res := v.ValidateModules(context.Background(), []string{"Status", "Udbud"})
	assert.Empty(t, res.Valid)
	assert.Equal(t, []string{"Status", "Udbud"}, res.Invalid)
	assert.Contains(t, res.Error, km24.ErrAuth.Error())
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Status", " status "))
	assert.Zero(t, Similarity("", "Status"))
	assert.InDelta(t, 12.0/19.0+0.2, Similarity("medier", "Danske medier"), 1e-9)
	assert.Equal(t, 1.0, Similarity("Arbejdstilsynet", "Arbejdstilsyn"))
}

func TestMatchReasonPrefersPhraseRules(t *testing.T) {
	assert.Equal(t, "Relevant for monitoring property trades and land registrations",
		matchReason("ejendomshandler", "Tinglysning", "tinglysning", 0.4))
	assert.Equal(t, "Relevant for following public contracts and procurement processes",
		matchReason("udbud", "Udbud", "udbud", 1))
	assert.Equal(t, "High similarity with module name and functionality",
		matchReason("statuss", "Status", "status", 0.75))
	assert.Equal(t, "Module name contains search term 'medie'",
		matchReason("medie", "Danske medier", "danske-medier", 0.5))
	assert.Equal(t, "Search term contains module name 'Status'",
		matchReason("statusændringer", "Status", "status", 0.5))
	assert.Equal(t, "Partial similarity with module name and potentially relevant functionality",
		matchReason("abc", "Status", "status", 0.4))
}

func TestSuggestExactMatchShortCircuits(t *testing.T) {
	v := newValidator()
	got, err := v.Suggest(context.Background(), "lokalpolitik", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Lokalpolitik", got[0].ModuleTitle)
	assert.Equal(t, 1.0, got[0].Confidence)
}

func TestSuggestForGoal(t *testing.T) {
	v := newValidator()
	got, err := v.SuggestForGoal(context.Background(), "Udbud og konkurser i byggeriet", 3)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 3)
	assert.Equal(t, "Udbud", got[0].ModuleTitle)
	assert.Equal(t, 1.0, got[0].Confidence)

	slugs := map[string]bool{}
	for _, s := range got {
		assert.False(t, slugs[s.ModuleSlug], "duplicate %s", s.ModuleSlug)
		slugs[s.ModuleSlug] = true
	}
}

func TestGoalKeywords(t *testing.T) {
	assert.Equal(t, []string{"undersøg", "asbest", "esbjerg"}, GoalKeywords("Undersøg asbest i Esbjerg og asbest"))
	assert.Empty(t, GoalKeywords("og i på"))
}

func TestSearchExamples(t *testing.T) {
	assert.Equal(t, []string{"vinder OR tildelt OR valgt", "kontraktværdi > 1000000", "offentlig OR kommunal OR statlig"},
		SearchExamples("Udbud"))
	assert.Len(t, SearchExamples("Miljøsager"), 3)
	assert.Equal(t, "relevant OR vigtig OR central", SearchExamples("Ukendt")[0])
}

func TestCard(t *testing.T) {
	v := newValidator()
	card, ok, err := v.Card(context.Background(), "Arbejdstilsyn")
	require.NoError(t, err)
	require.True(t, ok)
	names := make([]string, 0, len(card.AvailableFilters))
	for _, f := range card.AvailableFilters {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"Kommune", "Problem", "Reaktion", "Virksomhed"}, names)
	assert.Equal(t, "📊", card.Emoji)
	assert.Equal(t, "#666666", card.Color)
	assert.False(t, card.RequiresSourceSelection)
	assert.Equal(t, "Filter on specific problem categories", card.AvailableFilters[1].PracticalUse)

	card, ok, err = v.Card(context.Background(), "Danske medier")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, card.RequiresSourceSelection)

	_, ok, err = v.Card(context.Background(), "danske medier")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDataFrequency(t *testing.T) {
	assert.Equal(t, "several times daily", DataFrequency("Opdateres dagligt"))
	assert.Equal(t, "weekly", DataFrequency("ugentlige lister"))
	assert.Equal(t, "continuous updates", DataFrequency(""))
}

func TestAdvise(t *testing.T) {
	v := newValidator()
	adv, err := v.Advise(context.Background(), "Tinglysning")
	require.NoError(t, err)
	assert.Equal(t, []string{"1. Kommune (98 municipalities + Christiansø)", "2. Beløb", "3. Ejendomstype"}, adv.OptimalSequence)
	assert.Equal(t, "No industry filtering available - may produce many hits", adv.ComplexityWarning)

	adv, err = v.Advise(context.Background(), "Lokalpolitik")
	require.NoError(t, err)
	assert.Contains(t, adv.ComplexityWarning, "REQUIRED")

	adv, err = v.Advise(context.Background(), "Nope")
	require.NoError(t, err)
	assert.Equal(t, "Module not found", adv.ComplexityWarning)
}

func TestAnalyzeComplexity(t *testing.T) {
	v := newValidator()
	c, err := v.AnalyzeComplexity(context.Background(), "Registrering", nil)
	require.NoError(t, err)
	assert.Equal(t, "Very high (>500/day)", c.EstimatedHits)
	assert.Equal(t, "interval", c.NotificationRecommendation["type"])
	assert.Len(t, c.OptimizationSuggestions, 2)

	c, err = v.AnalyzeComplexity(context.Background(), "Registrering", map[string][]string{
		"industry":     {"41.20.00"},
		"municipality": {"Aarhus"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Low (1-20/day)", c.EstimatedHits)
	assert.Equal(t, "High - well configured", c.FilterEfficiency)
	assert.Equal(t, "Configuration looks good", c.NotificationRecommendation["optimization"])
}

func TestWorkflows(t *testing.T) {
	got := Workflows([]string{"Registrering", "Status", "Udbud"})
	require.Len(t, got, 2)
	assert.Equal(t, "Registrering", got[0].Primary)
	assert.Equal(t, []string{"Status"}, got[0].ConnectsTo)
	assert.Equal(t, "Udbud", got[1].Primary)
	assert.Empty(t, Workflows([]string{"Tinglysning"}))
}
