package lsp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecideFastPathRequiresMatchingDefHashForEveryFile(t *testing.T) {
	prev := map[string]FileSummary{"a.rb": {DefHash: "d1"}}
	next := map[string]FileSummary{"a.rb": {DefHash: "d1"}}
	require.True(t, DecideFastPath(prev, next))

	next["a.rb"] = FileSummary{DefHash: "d2"}
	require.False(t, DecideFastPath(prev, next), "changed DefHash forces the slow path")
}

func TestDecideFastPathFirstSeenFileForcesSlowPath(t *testing.T) {
	prev := map[string]FileSummary{}
	next := map[string]FileSummary{"new.rb": {DefHash: "d1"}}
	require.False(t, DecideFastPath(prev, next))
}

func TestChangedMethodBodiesReportsOnlyDifferingHashes(t *testing.T) {
	prev := map[string]FileSummary{
		"a.rb": {MethodBodyHashes: map[string]string{"foo": "h1", "bar": "h2"}},
	}
	next := map[string]FileSummary{
		"a.rb": {MethodBodyHashes: map[string]string{"foo": "h1", "bar": "h2changed"}},
	}
	changed := ChangedMethodBodies(prev, next)
	require.Equal(t, []string{"bar"}, changed["a.rb"])
}

func TestHashCacheMemoizesAndTracksLast(t *testing.T) {
	c := NewHashCache()
	_, ok := c.Last("a.rb")
	require.False(t, ok)

	h1 := c.Hash("a.rb", "content")
	last, ok := c.Last("a.rb")
	require.True(t, ok)
	require.Equal(t, h1, last)

	h2 := c.Hash("a.rb", "content")
	require.Equal(t, h1, h2)

	h3 := c.Hash("a.rb", "different content")
	require.NotEqual(t, h1, h3)
}

func TestHashCacheCollapsesConcurrentIdenticalRequests(t *testing.T) {
	c := NewHashCache()
	var wg sync.WaitGroup
	hashes := make([]string, 50)
	for i := range hashes {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			hashes[i] = c.Hash("same.rb", "same content")
		}()
	}
	wg.Wait()
	for _, h := range hashes {
		require.Equal(t, hashes[0], h)
	}
}
