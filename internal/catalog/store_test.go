package catalog

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*Store, *MemoryStore) {
	t.Helper()
	mem := NewMemoryStore()
	return NewStore(mem), mem
}

func getComponent(t *testing.T, kv KV, groupSlug, componentSlug string) Component {
	t.Helper()
	entry, err := kv.Get(context.Background(), componentKey(groupSlug, componentSlug))
	require.NoError(t, err)
	var comp Component
	require.NoError(t, json.Unmarshal(entry.Value, &comp))
	return comp
}

func getVersion(t *testing.T, kv KV, groupSlug, componentSlug, version string) Version {
	t.Helper()
	entry, err := kv.Get(context.Background(), versionKey(groupSlug, componentSlug, version))
	require.NoError(t, err)
	var ver Version
	require.NoError(t, json.Unmarshal(entry.Value, &ver))
	return ver
}

func TestUpsertVersionCreatesHierarchy(t *testing.T) {
	store, mem := testStore(t)
	ctx := context.Background()

	res, err := store.UpsertVersion(ctx, "1.0.1", "api-button", "ApiElements", `{"props":[]}`)
	require.NoError(t, err)

	require.Equal(t, "api-elements", res.GroupSlug)
	require.Equal(t, "api-button", res.ComponentSlug)
	require.True(t, res.GroupCreated)
	require.True(t, res.ComponentCreated)
	require.True(t, res.VersionCreated)
	require.False(t, res.VersionReplaced)

	comp := getComponent(t, mem, "api-elements", "api-button")
	require.Equal(t, []string{"1.0.1"}, comp.Versions)
	require.Equal(t, "1.0.1", comp.CurrentVersion)
	require.Equal(t, "ApiElements", comp.Group)

	ver := getVersion(t, mem, "api-elements", "api-button", "1.0.1")
	require.Equal(t, `{"props":[]}`, ver.Docs)
}

func TestUpsertVersionIsIdempotent(t *testing.T) {
	store, mem := testStore(t)
	ctx := context.Background()

	_, err := store.UpsertVersion(ctx, "1.0.1", "api-button", "ApiElements", "docs-v1")
	require.NoError(t, err)
	keysAfterFirst := mem.Len()

	res, err := store.UpsertVersion(ctx, "1.0.1", "api-button", "ApiElements", "docs-v1")
	require.NoError(t, err)

	require.False(t, res.GroupCreated)
	require.False(t, res.ComponentCreated)
	require.False(t, res.VersionCreated)
	require.True(t, res.VersionReplaced)
	require.Equal(t, keysAfterFirst, mem.Len(), "repeat upsert must not add keys")

	comp := getComponent(t, mem, "api-elements", "api-button")
	require.Equal(t, []string{"1.0.1"}, comp.Versions, "no duplicate version entries")
}

func TestUpsertVersionAppendsInOrder(t *testing.T) {
	store, mem := testStore(t)
	ctx := context.Background()

	for _, v := range []string{"1.0.1", "1.0.2", "1.0.3"} {
		_, err := store.UpsertVersion(ctx, v, "api-button", "ApiElements", "docs "+v)
		require.NoError(t, err)
	}

	comp := getComponent(t, mem, "api-elements", "api-button")
	require.Equal(t, []string{"1.0.1", "1.0.2", "1.0.3"}, comp.Versions)
	require.Equal(t, "1.0.3", comp.CurrentVersion)
}

func TestUpsertVersionReplacesDocsForRebuild(t *testing.T) {
	store, mem := testStore(t)
	ctx := context.Background()

	_, err := store.UpsertVersion(ctx, "1.0.1", "api-button", "ApiElements", "old docs")
	require.NoError(t, err)

	res, err := store.UpsertVersion(ctx, "1.0.1", "api-button", "ApiElements", "new docs")
	require.NoError(t, err)
	require.True(t, res.VersionReplaced)

	ver := getVersion(t, mem, "api-elements", "api-button", "1.0.1")
	require.Equal(t, "new docs", ver.Docs)
}

func TestUpsertVersionRecreatesMissingRecord(t *testing.T) {
	store, mem := testStore(t)
	ctx := context.Background()

	// Simulate a crash after the version was appended to the component
	// list but before its record was written.
	comp := Component{
		Slug:           "api-button",
		Name:           "api-button",
		Group:          "ApiElements",
		Versions:       []string{"1.0.1"},
		CurrentVersion: "1.0.1",
	}
	data, err := json.Marshal(comp)
	require.NoError(t, err)
	_, err = mem.Put(ctx, componentKey("api-elements", "api-button"), data)
	require.NoError(t, err)

	res, err := store.UpsertVersion(ctx, "1.0.1", "api-button", "ApiElements", "recovered docs")
	require.NoError(t, err)
	require.True(t, res.VersionCreated)

	ver := getVersion(t, mem, "api-elements", "api-button", "1.0.1")
	require.Equal(t, "recovered docs", ver.Docs)
}

func TestUpsertVersionConcurrentDifferentVersions(t *testing.T) {
	store, mem := testStore(t)
	ctx := context.Background()

	// Five racers fit within the conflict retry budget even in the worst
	// case where one loses every round.
	versions := []string{"1.0.1", "1.0.2", "1.0.3", "1.0.4", "1.0.5"}

	var wg sync.WaitGroup
	errs := make([]error, len(versions))
	for i, v := range versions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.UpsertVersion(ctx, v, "api-button", "ApiElements", "docs "+v)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "upsert of %s", versions[i])
	}

	comp := getComponent(t, mem, "api-elements", "api-button")
	require.Len(t, comp.Versions, len(versions), "no appended version may be lost to a race")
	seen := map[string]bool{}
	for _, v := range comp.Versions {
		require.False(t, seen[v], "duplicate version %s", v)
		seen[v] = true
	}
	for _, v := range versions {
		require.True(t, seen[v], "version %s missing from component list", v)
		_ = getVersion(t, mem, "api-elements", "api-button", v)
	}
}

func TestUpsertVersionValidatesArguments(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	for _, args := range [][3]string{
		{"", "api-button", "ApiElements"},
		{"1.0.1", "", "ApiElements"},
		{"1.0.1", "api-button", ""},
	} {
		_, err := store.UpsertVersion(ctx, args[0], args[1], args[2], "docs")
		require.Error(t, err)
	}
}

func TestComponentsInDifferentGroupsDoNotCollide(t *testing.T) {
	store, mem := testStore(t)
	ctx := context.Background()

	_, err := store.UpsertVersion(ctx, "1.0.0", "button", "GroupOne", "a")
	require.NoError(t, err)
	_, err = store.UpsertVersion(ctx, "2.0.0", "button", "GroupTwo", "b")
	require.NoError(t, err)

	one := getComponent(t, mem, "group-one", "button")
	two := getComponent(t, mem, "group-two", "button")
	require.Equal(t, []string{"1.0.0"}, one.Versions)
	require.Equal(t, []string{"2.0.0"}, two.Versions)
}
