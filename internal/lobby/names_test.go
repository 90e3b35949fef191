package lobby

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamePool_AllocateFromPool(t *testing.T) {
	pool := NewNamePool()

	name := pool.Allocate(nil)
	require.Contains(t, sessionNames[:], name)
}

func TestNamePool_SkipsUsedNames(t *testing.T) {
	pool := NewNamePool()
	pool.pick = func(n int) int { return 0 }

	used := map[string]struct{}{sessionNames[0]: {}}
	name := pool.Allocate(used)
	require.Equal(t, sessionNames[1], name)
}

func TestNamePool_SuffixesWhenExhausted(t *testing.T) {
	pool := NewNamePool()
	pool.pick = func(n int) int { return 0 }

	used := make(map[string]struct{}, 2*len(sessionNames))
	for _, name := range sessionNames {
		used[name] = struct{}{}
	}

	name := pool.Allocate(used)
	require.Equal(t, sessionNames[0]+"2", name)

	for _, base := range sessionNames {
		used[base+"2"] = struct{}{}
	}
	name = pool.Allocate(used)
	require.Equal(t, sessionNames[0]+"3", name)
}

func TestNamePool_ExhaustedLevelPicksFreeCandidate(t *testing.T) {
	pool := NewNamePool()
	pool.pick = func(n int) int { return 0 }

	used := make(map[string]struct{}, 2*len(sessionNames))
	for _, name := range sessionNames {
		used[name] = struct{}{}
	}
	used[sessionNames[0]+"2"] = struct{}{}

	name := pool.Allocate(used)
	require.Equal(t, sessionNames[1]+"2", name)
}
