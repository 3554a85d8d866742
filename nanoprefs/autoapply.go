package nanoprefs

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
)

// autoApplier turns writes on a deferred backend into one coalesced Apply
// per batch. Writes made while isForeground reports true post the apply to
// the foreground queue; everything else runs on a background goroutine.
type autoApplier struct {
	backend      storage.Backend
	logger       *zap.Logger
	metrics      *storeMetrics
	isForeground func() bool
	queue        func(func())

	pending atomic.Bool
	running sync.WaitGroup
}

func (a *autoApplier) schedule() {
	if !a.backend.Deferred() {
		return
	}
	if !a.pending.CompareAndSwap(false, true) {
		return
	}
	a.running.Add(1)
	run := func() {
		defer a.running.Done()
		a.pending.Store(false)
		a.backend.Apply()
		a.metrics.commit("auto", nil)
	}
	if a.isForeground != nil && a.queue != nil && a.isForeground() {
		a.logger.Debug("auto-apply posted to foreground queue")
		a.queue(run)
		return
	}
	go run()
}

// wait blocks until scheduled applies ran, including ones posted to a
// foreground queue.
func (a *autoApplier) wait() {
	a.running.Wait()
}
