package knowledge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"km24vejviser/internal/km24"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestExtractTermsDetectsVocabulary(t *testing.T) {
	text := "Arbejdstilsynet giver Strakspåbud og forbud. Samlehandler over beløbsgrænsen. " +
		"Dækker erhvervsejendomme, asbest-sager og de lokale og regionale medier."
	got := SortedTerms(ExtractTerms(text))
	want := []string{"asbest", "beløbsgrænse", "erhvervsejendom", "forbud", "lokale medier", "samlehandel", "strakspåbud"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("terms mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractTermsUsesUnicodeWordBoundaries(t *testing.T) {
	assert.Empty(t, ExtractTerms("miljøforbud og røgpåbud"))
	assert.NotContains(t, ExtractTerms("strakspåbud"), "påbud")
	assert.Contains(t, ExtractTerms("et påbud."), "påbud")
	assert.Empty(t, ExtractTerms(""))
}

func testParts() []km24.Part {
	return []km24.Part{
		{ID: 1, Part: km24.PartMunicipality, Name: "Kommune"},
		{ID: 204, Part: km24.PartGenericValue, Name: "Reaktion"},
		{ID: 205, Part: km24.PartGenericValue, Name: "Problem"},
		{ID: 206, Part: km24.PartGenericValue, Name: "Problemtype"},
		{ID: 300, Part: km24.PartWebSource, Name: "Kilde"},
	}
}

func TestMapTermsToPartsFirstMatchWins(t *testing.T) {
	terms := map[string]struct{}{"asbest": {}, "forbud": {}, "lokale medier": {}, "erhvervsejendom": {}}
	got := MapTermsToParts(terms, testParts(), 110)

	require.Len(t, got, 3)
	byTerm := map[string]Mapping{}
	for _, m := range got {
		byTerm[m.Term] = m
	}
	assert.Equal(t, 205, byTerm["asbest"].PartID)
	assert.Equal(t, "problem", byTerm["asbest"].PartName)
	assert.Equal(t, []string{"asbest"}, byTerm["asbest"].SuggestedValues)
	assert.InDelta(t, 0.8, byTerm["forbud"].Confidence, 1e-9)
	assert.Equal(t, "Term matches the Reaktion part", byTerm["forbud"].Evidence)
	assert.Equal(t, 300, byTerm["lokale medier"].PartID)
	assert.Empty(t, byTerm["lokale medier"].SuggestedValues)
	assert.NotContains(t, byTerm, "erhvervsejendom")
}

func TestMapTermsToPartsWithoutPartsIsEmpty(t *testing.T) {
	assert.Empty(t, MapTermsToParts(map[string]struct{}{"asbest": {}}, nil, 1))
	assert.Empty(t, MapTermsToParts(nil, testParts(), 1))
}

type fakeSource struct {
	res   km24.Response
	calls int
}

func (f *fakeSource) ModulesBasic(context.Context, bool) km24.Response {
	f.calls++
	return f.res
}

const modulesJSON = `{"items":[
 {"id":110,"title":"Arbejdstilsyn","slug":"arbejdstilsyn","longDescription":"Forbud, strakspåbud og asbest.",
  "parts":[{"id":204,"part":"generic_value","name":"Reaktion"},{"id":205,"part":"generic_value","name":"Problem"}]},
 {"id":"bad","title":"Broken"},
 {"id":120,"title":"Tinglysning","longDescription":"Samlehandler og erhvervsejendomme.",
  "parts":[{"id":301,"part":"generic_value","name":"Ejendomstype"},{"id":302,"part":"amount_selection","name":"Beløb"}]}
]}`

func TestBaseLoadFromGateway(t *testing.T) {
	src := &fakeSource{res: km24.Response{Success: true, Data: json.RawMessage(`{"items":[
	 {"id":110,"title":"Arbejdstilsyn","longDescription":"Forbud og asbest.","parts":[{"id":204,"part":"generic_value","name":"Reaktion"},{"id":205,"part":"generic_value","name":"Problem"}]},
	 {"id":120,"title":"Tinglysning","longDescription":"Samlehandler.","parts":[{"id":302,"part":"amount_selection","name":"Beløb"}]}]}`)}}
	b := NewBase(src, Options{})

	st := b.Load(context.Background(), false)
	require.True(t, st.Success)
	assert.Equal(t, 2, st.Profiles)
	assert.Equal(t, "api", st.Source)

	p, ok := b.ProfileByTitle("ARBEJDSTILSYN")
	require.True(t, ok)
	assert.Equal(t, 110, p.ModuleID)
	assert.Equal(t, "arbejdstilsyn", p.Slug)
	assert.Equal(t, []string{"asbest", "forbud"}, p.Terms)

	again := b.Load(context.Background(), false)
	assert.Equal(t, "memory", again.Source)
	assert.Equal(t, 1, src.calls)
}

func TestBaseFallsBackToSnapshotEnvelope(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "_modules_basic.json")
	env := `{"cached_at":"2025-01-01T10:00:00","data":` + `{"items":[{"id":110,"title":"Arbejdstilsyn","longDescription":"asbest","parts":[{"id":205,"part":"generic_value","name":"Problem"}]}]}` + `}`
	require.NoError(t, os.WriteFile(path, []byte(env), 0o644))

	src := &fakeSource{res: km24.Response{Success: false, Error: "KM24_API_KEY not configured"}}
	b := NewBase(src, Options{Snapshot: path})
	st := b.Load(context.Background(), false)
	require.True(t, st.Success, st.Error)
	assert.Equal(t, "snapshot", st.Source)

	p, ok := b.ProfileByID(110)
	require.True(t, ok)
	require.Len(t, p.Mappings, 1)
	assert.Equal(t, 205, p.Mappings[0].PartID)
}

func TestBaseLoadFailureWithoutSnapshot(t *testing.T) {
	b := NewBase(&fakeSource{res: km24.Response{Error: "down"}}, Options{})
	st := b.Load(context.Background(), false)
	assert.False(t, st.Success)
	assert.Equal(t, "down", st.Error)
	assert.Empty(t, b.Profiles())
}

func TestMatchGoalRequiresTermOnBothSides(t *testing.T) {
	src := &fakeSource{res: km24.Response{Success: true, Data: json.RawMessage(modulesJSON)}}
	b := NewBase(src, Options{})
	require.True(t, b.Load(context.Background(), false).Success)
	assert.Len(t, b.Profiles(), 2)

	got := b.MatchGoal("Undersøg alvorlige asbest-sager i Esbjerg", []string{"arbejdstilsyn", "Danske medier"})
	require.Len(t, got, 1)
	assert.Equal(t, "Arbejdstilsyn", got[0].ModuleTitle)
	assert.Equal(t, "asbest", got[0].Mapping.Term)

	assert.Empty(t, b.MatchGoal("asbest", []string{"Tinglysning"}))
	assert.Empty(t, b.MatchGoal("ingen kendte ord", nil))
}

func TestSnapshotWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items":[{"id":1,"title":"Udbud"}]}`), 0o644))

	b := NewBase(nil, Options{Snapshot: path})
	require.True(t, b.Load(context.Background(), false).Success)
	require.Len(t, b.Profiles(), 1)

	w, err := NewSnapshotWatcher(b, path, nil)
	require.NoError(t, err)
	reloaded := make(chan int, 4)
	w.OnReload(func(n int, err error) {
		if err == nil {
			reloaded <- n
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{"items":[{"id":1,"title":"Udbud"},{"id":2,"title":"Status"}]}`), 0o644))

	select {
	case n := <-reloaded:
		assert.Equal(t, 2, n)
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot was not reloaded")
	}
	_, ok := b.ProfileByTitle("status")
	assert.True(t, ok)
}
