package inmemorystore

import (
	"sync"
	"testing"

	"github.com/specialistvlad/livebind/internal/async"
	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/diag"
	"github.com/specialistvlad/livebind/internal/facetstore"
	"github.com/specialistvlad/livebind/internal/provider"
	"github.com/specialistvlad/livebind/internal/testutil"
	"github.com/specialistvlad/livebind/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetProvider(t *testing.T) {
	s := New()
	q := async.NewQueue()
	loader := testutil.NewStubLoader(q)
	loader.Define("x", bindctx.Context{})
	doc := testutil.ParseDocument(t, `<div id="host"><script context>x</script></div>`)
	host := testutil.ByID(t, doc, "host")

	// A node without a provider facet
	_, ok := s.Provider(host.ID())
	assert.False(t, ok)

	ctx, _ := testutil.LogContext()
	p := provider.NewResolver(q, loader, &diag.Recorder{}).Resolve(ctx, host, nil)
	require.NotNil(t, p)

	s.SetProvider(host.ID(), p)
	s.SetProvider(host.ID(), p)
	got, ok := s.Provider(host.ID())
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.Equal(t, int64(1), s.Stats().Providers, "replacing a facet does not double count")

	deleted, ok := s.DeleteProvider(host.ID())
	require.True(t, ok)
	assert.Same(t, p, deleted)
	_, ok = s.DeleteProvider(host.ID())
	assert.False(t, ok)
	assert.Zero(t, s.Stats().Providers)
}

func TestBindings_NoDuplicates(t *testing.T) {
	s := New()
	id := tree.NodeID(7)
	calls := 0

	require.NoError(t, s.SetBinding(id, "bind-text", func() { calls++ }))
	require.NoError(t, s.SetBinding(id, "bind-attr", func() {}))
	assert.ErrorIs(t, s.SetBinding(id, "bind-text", func() {}), facetstore.ErrAlreadyBound)
	assert.Equal(t, []string{"bind-attr", "bind-text"}, s.Bindings(id))
	assert.Equal(t, facetstore.Stats{Bindings: 2, Nodes: 1}, s.Stats())

	dispose, ok := s.DeleteBinding(id, "bind-text")
	require.True(t, ok)
	dispose()
	assert.Equal(t, 1, calls)

	taken := s.TakeBindings(id)
	assert.Len(t, taken, 1)
	assert.Empty(t, s.Bindings(id))
	assert.Equal(t, facetstore.Stats{}, s.Stats())
	assert.Nil(t, s.TakeBindings(id))
}

func TestEpochs_NeverRepeat(t *testing.T) {
	s := New()
	id := tree.NodeID(1)
	assert.Zero(t, s.Epoch(id))

	first := s.BumpEpoch(id)
	assert.Equal(t, first, s.Epoch(id))

	s.Forget(id)
	assert.Zero(t, s.Epoch(id))
	second := s.BumpEpoch(id)
	assert.Greater(t, second, first)
}

// TestStore_ConcurrentStats verifies that Stats can be read while bindings are
// being written, without data races or lost updates.
func TestStore_ConcurrentStats(t *testing.T) {
	s := New()
	numGoroutines := 50
	var wg sync.WaitGroup

	wg.Add(numGoroutines * 2)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.SetBinding(tree.NodeID(i), "bind-text", func() {}))
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Stats()
		}()
	}
	wg.Wait()

	assert.Equal(t, facetstore.Stats{Bindings: int64(numGoroutines), Nodes: int64(numGoroutines)}, s.Stats())
}
