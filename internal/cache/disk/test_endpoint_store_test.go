package disk

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestStore(t *testing.T, clock *fakeClock) *EndpointStore {
	t.Helper()
	store, err := NewEndpointStore(EndpointStoreConfig{Root: t.TempDir(), Now: clock.now})
	require.NoError(t, err)
	return store
}

func TestFileNameReplacesSeparators(t *testing.T) {
	assert.Equal(t, "_modules_basic.json", FileName("/modules/basic"))
	assert.Equal(t, "_generic-values_12_x=1.json", FileName("/generic-values/12?x=1"))
}

func TestEndpointStoreRoundTripReportsAge(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "/municipalities", json.RawMessage(`{"items":[{"id":1}]}`)))
	clock.t = clock.t.Add(2 * time.Hour)

	ent, ok := store.Get(ctx, "/municipalities")
	require.True(t, ok)
	assert.JSONEq(t, `{"items":[{"id":1}]}`, string(ent.Data))
	assert.Equal(t, 2*time.Hour, ent.Age)
}

func TestEndpointStoreStaleAfterSevenDays(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "/regions", json.RawMessage(`{"items":[]}`)))
	clock.t = clock.t.Add(DefaultMaxAge + time.Minute)

	_, ok := store.Get(ctx, "/regions")
	assert.False(t, ok)

	files, err := store.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].Stale)
}

func TestEndpointStoreCorruptFileIsMiss(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newTestStore(t, clock)
	require.NoError(t, os.WriteFile(store.Path("/court-districts"), []byte("{not json"), 0o644))

	_, ok := store.Get(context.Background(), "/court-districts")
	assert.False(t, ok)
}

func TestEndpointStoreReadsNaiveTimestamp(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newTestStore(t, clock)
	stamp := clock.t.Add(-time.Hour).Format("2006-01-02T15:04:05.999999")
	raw := `{"cached_at":"` + stamp + `","data":{"items":[]}}`
	require.NoError(t, os.WriteFile(store.Path("/modules/basic"), []byte(raw), 0o644))

	ent, ok := store.Get(context.Background(), "/modules/basic")
	require.True(t, ok)
	assert.InDelta(t, time.Hour.Seconds(), ent.Age.Seconds(), 1)
}

func TestEndpointStoreClear(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newTestStore(t, clock)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "/a", json.RawMessage(`1`)))
	require.NoError(t, store.Set(ctx, "/b", json.RawMessage(`2`)))
	require.NoError(t, os.WriteFile(filepath.Join(store.root, "keep.txt"), []byte("x"), 0o644))

	n, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok := store.Get(ctx, "/a")
	assert.False(t, ok)
	_, err = os.Stat(filepath.Join(store.root, "keep.txt"))
	assert.NoError(t, err)
}

func TestEndpointStoreRejectsInvalidJSON(t *testing.T) {
	store := newTestStore(t, &fakeClock{t: time.Now()})
	assert.Error(t, store.Set(context.Background(), "/x", json.RawMessage(`nope`)))
}
