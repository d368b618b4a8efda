package ids

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeNextUniqueUnderConcurrency(t *testing.T) {
	n := NewNode(7)
	const workers, per = 8, 500

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, per)
			for i := 0; i < per; i++ {
				local = append(local, n.Next())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, workers*per)
}

func TestNodeOf(t *testing.T) {
	n := NewNode(42)
	require.Equal(t, int64(42), NodeOf(n.Next()))

	bad := NewNode(5000)
	require.Equal(t, int64(1), NodeOf(bad.Next()))
}

func TestNextIncreasing(t *testing.T) {
	n := NewNode(1)
	prev := n.Next()
	for i := 0; i < 1000; i++ {
		id := n.Next()
		require.Greater(t, id, prev)
		prev = id
	}
}
