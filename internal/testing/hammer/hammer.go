// Package hammer runs a test body from many goroutines released at the same time, to surface
// races on state shared between compilations.
package hammer

import (
	"runtime"
	"sync"
	"testing"
)

// Hammer invokes a test concurrently in P goroutines N times per goroutine.
//
// For example, to compile the same module from many goroutines:
//
//	P, N := 8, 20
//	if testing.Short() {
//		P, N = 4, 5
//	}
//	hammer.NewHammer(t, P, N).Run(func(p, n int) {
//		_, err := c.Compile(fn, mod)
//		require.NoError(t, err)
//	}, nil)
//	if t.Failed() {
//		return
//	}
type Hammer interface {
	// Run calls test(p, n) for every goroutine p in [0, P) and iteration n in [0, N).
	// onRunning, if not nil, is called once every goroutine started and before any test.
	//
	// A panic in test, including a failed require, marks the calling test failed.
	Run(test func(p, n int), onRunning func())
}

// NewHammer returns a Hammer of P goroutines doing N iterations each.
func NewHammer(t testing.TB, P, N int) Hammer {
	return &hammer{t: t, P: P, N: N}
}

type hammer struct {
	t    testing.TB
	P, N int
}

// Run implements Hammer.Run
func (h *hammer) Run(test func(p, n int), onRunning func()) {
	// Fewer threads than goroutines forces them to switch.
	procs := h.P / 2
	if procs < 1 {
		procs = 1
	}
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(procs))

	var started, release, finished sync.WaitGroup
	started.Add(h.P)
	release.Add(1)
	finished.Add(h.P)
	for p := 0; p < h.P; p++ {
		go func() {
			defer finished.Done()
			defer func() {
				if recovered := recover(); recovered != nil {
					h.t.Error(recovered)
				}
			}()
			started.Done()
			release.Wait()
			for n := 0; n < h.N; n++ {
				test(p, n)
			}
		}()
	}

	started.Wait()
	if onRunning != nil {
		onRunning()
	}
	release.Done()
	finished.Wait()
}
