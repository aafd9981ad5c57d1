package hammer

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHammer_Run(t *testing.T) {
	var calls atomic.Int64
	var seen [4][3]atomic.Bool
	running := false
	NewHammer(t, 4, 3).Run(func(p, n int) {
		require.True(t, running)
		calls.Add(1)
		seen[p][n].Store(true)
	}, func() { running = true })

	require.Equal(t, int64(12), calls.Load())
	for p := range seen {
		for n := range seen[p] {
			require.True(t, seen[p][n].Load(), "p=%d n=%d", p, n)
		}
	}
}
