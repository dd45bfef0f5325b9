// Package hammer runs a test body from many goroutines at once, to surface data races on
// state that is meant to be shared, such as template catalogs.
package hammer

import (
	"runtime"
	"sync"
	"testing"
)

// Hammer invokes a test concurrently in P goroutines N times per goroutine.
//
// For example, to decode the same code from eight goroutines, each with its own
// Disassembler over the shared catalog:
//
//	P, N := 8, 1000
//	if testing.Short() {
//		P, N = 4, 100
//	}
//	hammer.NewHammer(t, P, N).Run(func(p, n int) {
//		insts, err := asm.NewDisassembler(amd64.ISA{}, asm.Options{}).All(code)
//		require.NoError(t, err)
//		require.Len(t, insts, want)
//	}, nil)
//	if t.Failed() {
//		return
//	}
//
// Run with -race for the hammer to be useful.
type Hammer interface {
	// Run calls test(p, n) for every goroutine p < P and iteration n < N. All goroutines
	// are started before any of them calls test. onRunning, when not nil, is called once
	// every goroutine is started and before they are released.
	//
	// A panic in test, such as a failed require assertion, is reported with t.Error.
	Run(test func(p, n int), onRunning func())
}

// NewHammer returns a Hammer with P goroutines running N iterations each. Size P and N so
// that Run completes in about a tenth of a second.
func NewHammer(t testing.TB, P, N int) Hammer {
	return &hammer{t: t, P: P, N: N}
}

type hammer struct {
	t    testing.TB
	P, N int
}

// Run implements Hammer.Run
func (h *hammer) Run(test func(p, n int), onRunning func()) {
	// Fewer procs than goroutines forces switches in the middle of the test body.
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(max(h.P/2, 1)))

	var started, finished sync.WaitGroup
	release := make(chan struct{})
	started.Add(h.P)
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
			<-release
			for n := 0; n < h.N; n++ {
				test(p, n)
			}
		}()
	}

	started.Wait()
	if onRunning != nil {
		onRunning()
	}
	close(release)
	finished.Wait()
}
