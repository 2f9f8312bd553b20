package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"km24vejviser/internal/km24"
	"km24vejviser/internal/km24/km24test"
)

func TestLoadAllFallsBackWhenAPIIsDown(t *testing.T) {
	fake := km24test.New().
		Fail("/municipalities", km24.ErrConnection).
		Fail("/branch-codes/detailed", km24.ErrTimeout).
		Fail("/regions", km24.ErrAuth).
		Fail("/court-districts", km24.ErrNoAPIKey).
		Fail("/modules/basic", km24.ErrNoAPIKey)
	c := New(fake, Options{})

	s := c.LoadAll(context.Background(), false)
	assert.Equal(t, 0, s.Loaded)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 10, s.Municipalities)
	assert.Equal(t, 20, s.BranchCodes)
	assert.Equal(t, 5, s.Regions)
	assert.Equal(t, 5, s.CourtDistricts)
	assert.Equal(t, 0, s.Modules)
	assert.Equal(t, []string{"branch_codes", "court_districts", "municipalities", "regions"}, s.Fallback)
}

func TestLoadAllPartialFailureKeepsSuccesses(t *testing.T) {
	fake := km24test.WithModules().
		Set("/municipalities", `{"items":[{"id":751,"name":"Aarhus","region":"Midtjylland"},{"id":561,"name":"Esbjerg"}]}`).
		Fail("/branch-codes/detailed", km24.ErrTimeout).
		Set("/regions", `{"items":[{"id":1084,"name":"Hovedstaden"}]}`).
		Set("/court-districts", `{"items":[]}`)
	c := New(fake, Options{})

	s := c.LoadAll(context.Background(), false)
	assert.Equal(t, 4, s.Loaded)
	assert.Equal(t, 2, s.Municipalities)
	assert.Equal(t, 20, s.BranchCodes)
	assert.Equal(t, 7, s.Modules)
	assert.Equal(t, []string{"branch_codes"}, s.Fallback)
	assert.Equal(t, "Ukendt", c.Municipalities()[1].Region)

	// Fresh tables are not fetched again within the TTL.
	c.LoadAll(context.Background(), false)
	assert.Equal(t, 1, fake.Calls("/municipalities"))
	c.LoadAll(context.Background(), true)
	assert.Equal(t, 2, fake.Calls("/municipalities"))
}

func TestTablesExpireAfterTTL(t *testing.T) {
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	fake := km24test.New().Set("/regions", `{"items":[{"id":1,"name":"Sjælland"}]}`)
	c := New(fake, Options{Now: func() time.Time { return now }})

	require.NoError(t, c.loadRegions(context.Background(), false))
	require.NoError(t, c.loadRegions(context.Background(), false))
	assert.Equal(t, 1, fake.Calls("/regions"))

	now = now.Add(DefaultTTL + time.Minute)
	require.NoError(t, c.loadRegions(context.Background(), false))
	assert.Equal(t, 2, fake.Calls("/regions"))
}

func TestModuleResolution(t *testing.T) {
	c := New(km24test.WithModules(), Options{})
	require.NoError(t, c.EnsureModules(context.Background()))

	id, ok := c.ModuleID("Arbejdstilsyn")
	require.True(t, ok)
	assert.Equal(t, 110, id)

	id, ok = c.ModuleID("danske MEDIER")
	require.True(t, ok)
	assert.Equal(t, 130, id)

	m, ok := c.Module("danske medier")
	require.True(t, ok)
	assert.True(t, m.IsWebSource())

	_, ok = c.ModuleID("Findes ikke")
	assert.False(t, ok)
}

func TestModuleIDCaseInsensitiveMatchFollowsAPIOrder(t *testing.T) {
	fake := km24test.New().Set("/modules/basic", `{"items":[
		{"id":161,"title":"STATUS"},{"id":160,"title":"Status"},{"id":162,"title":"status"}]}`)
	c := New(fake, Options{})
	require.NoError(t, c.EnsureModules(context.Background()))

	for i := 0; i < 20; i++ {
		id, ok := c.ModuleID("sTaTuS")
		require.True(t, ok)
		assert.Equal(t, 161, id)
	}
	id, _ := c.ModuleID("Status")
	assert.Equal(t, 160, id)
}

func TestLoadModuleFiltersWarmsValueCaches(t *testing.T) {
	fake := km24test.WithModules()
	c := New(fake, Options{})
	ctx := context.Background()

	st, err := c.LoadModuleFilters(ctx, 110, false)
	require.NoError(t, err)
	assert.Equal(t, 4, st.PartsLoaded)
	assert.Equal(t, 2, st.GenericValuesLoaded)
	require.Len(t, c.CachedGenericValues(205), 3)

	vals, err := c.GenericValues(ctx, 205, false)
	require.NoError(t, err)
	assert.Equal(t, "Asbest", vals[0].Name)
	assert.Equal(t, 1, fake.Calls("/generic-values/205"))

	st, err = c.LoadModuleFilters(ctx, 130, false)
	require.NoError(t, err)
	assert.Equal(t, 1, st.WebSourcesLoaded)
	assert.Len(t, c.CachedWebSources(130), 3)

	_, err = c.LoadModuleFilters(ctx, 999, false)
	assert.ErrorIs(t, err, km24.ErrNotFound)
}

func TestRelevantMunicipalitiesAndRegions(t *testing.T) {
	c := New(km24test.New(), Options{})
	c.LoadAll(context.Background(), false)

	groups := c.RelevantMunicipalities("Byggesager i Esbjerg og omegn")
	require.Len(t, groups, 1)
	assert.Equal(t, "vestjylland", groups[0].Key)
	assert.Equal(t, []string{"Esbjerg", "Herning"}, groups[0].Values)

	assert.Equal(t, []string{"hovedstaden"}, RelevantRegions("Korruption i København"))
	assert.Empty(t, RelevantRegions("ingen steder"))
}

func TestRelevantBranchCodesPicksMostSpecific(t *testing.T) {
	c := New(km24test.New(), Options{})
	c.LoadAll(context.Background(), false)

	groups := c.RelevantBranchCodes("konkurser i byggeriet")
	require.NotEmpty(t, groups)
	assert.Equal(t, "byggeri", groups[0].Key)
	assert.Equal(t, []string{"43.3", "41.1", "41.2"}, groups[0].Values)
	require.Len(t, groups, 2)
	assert.Equal(t, "ejendom", groups[1].Key)
	assert.Equal(t, []string{"68.2", "68.3"}, groups[1].Values)
}

func TestLocalMedia(t *testing.T) {
	assert.Equal(t, []string{"JydskeVestkysten", "Esbjerg Ugeavis"}, LocalMedia("Asbest i ESBJERG"))
	assert.Empty(t, LocalMedia("Aarhus"))
}
