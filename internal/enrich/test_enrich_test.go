package enrich

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"km24vejviser/internal/recipe"
)

func sampleRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		Overview: recipe.Overview{StrategySummary: "Følg byggeriet"},
		Steps: []recipe.Step{
			{StepNumber: 1, Title: "Nye byggefirmaer", Module: recipe.ModuleRef{Name: "Registrering"},
				Filters: map[string][]string{"Branche": {"41.20"}}, Notification: recipe.NotifyWeekly},
			{StepNumber: 2, Title: "Kritik", Module: recipe.ModuleRef{Name: "Arbejdstilsyn"},
				Filters:      map[string][]string{"Reaktion": {"Forbud"}, "Problem": {"Støj"}},
				Notification: recipe.NotifyInstant, SearchString: "nedrivning;asbest"},
			{StepNumber: 3, Title: "Lokale beslutninger", Module: recipe.ModuleRef{Name: "Lokalpolitik", IsWebSource: true},
				SourceSelection: []string{"Aarhus"}, Notification: recipe.NotifyDaily},
		},
	}
}

func TestMistakesParsesNumberedPitfalls(t *testing.T) {
	got := DefaultLibrary().Mistakes(MaxMistakes)
	want := []string{
		"1. Søgeord i Registrering",
		"2. Små boolean operatorer",
		"3. Komma i stedet for semikolon",
		"4. CVR-først glemt",
		"5. Løbende notifikation på højvolumen-moduler",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mistakes mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, DefaultLibrary().Mistakes(100), 8)
}

func TestRelevantPrinciple(t *testing.T) {
	lib := DefaultLibrary()
	assert.Equal(t, "cvr_first", lib.RelevantPrinciple("kombiner alt", "registrering"))
	assert.Equal(t, "hitlogik", lib.RelevantPrinciple("Både konkurser og kritik", "Status"))
	assert.Equal(t, "notification_strategy", lib.RelevantPrinciple("Konkurser i Aarhus", "Status"))
}

func TestExplainFilter(t *testing.T) {
	lib := DefaultLibrary()
	assert.Equal(t, "Geografisk fokus: Aarhus kommune", lib.ExplainFilter("Kommune", []string{"Aarhus"}, "Status"))
	assert.Equal(t, "Geografisk fokus: Aarhus, Odense kommuner", lib.ExplainFilter("kommune", []string{"Aarhus", "Odense"}, "Status"))
	assert.Equal(t, "Branche-filteret er tomt og filtrerer ikke", lib.ExplainFilter("Branche", nil, "Registrering"))
	assert.Equal(t, "Beløb: 1000000", lib.ExplainFilter("Beløb", []string{"1000000"}, "Tinglysning"))
}

func TestEnrichStep(t *testing.T) {
	e := NewEnricher(nil, nil)
	r := sampleRecipe()

	reg := e.Step(r.Steps[0], "Byggefirmaer i Aarhus")
	assert.True(t, strings.HasPrefix(reg.Principle, "CVR-først princippet: "), reg.Principle)
	assert.Equal(t, map[string]string{
		"Branche": "Branchekoderne 41.20 afgrænser til virksomheder i disse brancher",
	}, reg.FilterExplanations)
	assert.Len(t, reg.CommonMistakes, MaxMistakes)
	assert.NotEmpty(t, reg.QualityChecklist)
	assert.Equal(t, []string{"Overvåg Registrering-hits for uventede mønstre og afvigelser"}, reg.RedFlags)
	assert.True(t, strings.HasSuffix(reg.ActionPlan, "5. Dokumentér alt med PDF'er, skærmbilleder og noter"), reg.ActionPlan)
	assert.Contains(t, reg.ExampleHit, "branche 41.20")

	at := e.Step(r.Steps[1], "")
	assert.Equal(t, []string{
		"Alvorlige overtrædelser der kræver handling med det samme",
		"Gentagen kritik af samme virksomhed peger på systematiske problemer",
	}, at.RedFlags)
	assert.Contains(t, at.ActionPlan, "1. Gennemgå hittet med det samme")
	assert.Contains(t, at.ExampleHit, "Problem: Støj")

	unknown := e.Step(recipe.Step{Module: recipe.ModuleRef{Name: "Udbud"}}, "")
	assert.Empty(t, unknown.QualityChecklist)
	assert.True(t, strings.HasSuffix(unknown.ActionPlan, "3. Dokumentér alt med PDF'er, skærmbilleder og noter"))
}

func TestEnrichRecipe(t *testing.T) {
	r := sampleRecipe()
	NewEnricher(nil, nil).Enrich(r, "Byggeri og landbrug")

	for _, s := range r.Steps {
		require.NotNil(t, s.Educational, "step %d", s.StepNumber)
	}
	require.NotNil(t, r.EducationalContent)
	assert.Len(t, r.EducationalContent.KM24Principles, 3)
	assert.Contains(t, r.EducationalContent.KM24Principles["hitlogik"], "Anvend når: ")
	assert.Contains(t, r.EducationalContent.SyntaxGuide, "~kritisk sygdom~")

	assert.Equal(t, "Registrering", r.Steps[0].Module.Name)
	assert.Equal(t, ";-tricket: Brug term1;term2 for at fange flere begreber i samme step, fx solcellepark;solcelleanlæg.",
		r.Steps[1].AdvancedTactics)
	assert.Equal(t, []string{"Vælg en eller flere kilder, ellers giver modulet ingen hits."}, r.Steps[2].Guardrails.Warnings)
	assert.NotEmpty(t, r.Steps[2].StrategicNote)
	assert.Empty(t, r.Steps[0].StrategicNote)

	assert.Equal(t, []string{
		"Step 1: consider instant notification for Registrering",
		"Consider adding module Klagenævn: Klagenævnene har branchespecifikke sager.",
		"Consider adding module Personbogen: Pant i løsøre og høst er relevant i landbrugssager.",
	}, r.Quality.Recommendations)

	NewEnricher(nil, nil).Advise(r, "Byggeri og landbrug")
	assert.Len(t, r.Quality.Recommendations, 3)
	assert.Len(t, r.Steps[2].Guardrails.Warnings, 1)
}

func TestSupplementaryModulesMatchShortKeywordsAsWords(t *testing.T) {
	lib := DefaultLibrary()
	assert.Equal(t, []Supplement{{Module: "EU", Reason: "Projekter kan være støttet af EU's energifonde."}},
		lib.SupplementaryModules("Støtte fra EU til havne"))
	assert.Empty(t, lib.SupplementaryModules("Europæiske fonde"))
}
