package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextIsMonotonic(t *testing.T) {
	s := New(0)
	require.Equal(t, uint64(1), s.Next())
	require.Equal(t, uint64(2), s.Next())
	require.Equal(t, uint64(2), s.Current())
}

func TestResume(t *testing.T) {
	s := New(5)
	require.NoError(t, s.Resume(42))
	require.Equal(t, uint64(43), s.Next())
	require.Error(t, s.Resume(10))
	require.Equal(t, uint64(43), s.Current())
}

func TestNextUnderContention(t *testing.T) {
	s := New(0)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint64]struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1_000; j++ {
				n := s.Next()
				mu.Lock()
				seen[n] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, 8_000)
	require.Equal(t, uint64(8_000), s.Current())
}
