package backend

import (
	"runtime"
	"sync"
)

// defaultParallelThreshold is the minimum item count worth dispatching to
// the pool. Below it, a single inline chunk is faster than the handoff.
const defaultParallelThreshold = 1024

// workChunk is a contiguous range of items for one worker. index is the
// chunk's position, used to place per-chunk output deterministically.
type workChunk struct {
	index      int
	start, end int
	fn         func(index, start, end int)
}

// workerPool is a set of persistent goroutines fed through a channel.
type workerPool struct {
	numWorkers int
	threshold  int

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func newWorkerPool(workers, threshold int) *workerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if threshold <= 0 {
		threshold = defaultParallelThreshold
	}
	return &workerPool{numWorkers: workers, threshold: threshold}
}

func (p *workerPool) start() {
	if p.running {
		return
	}
	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *workerPool) stop() {
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(chunk.index, chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// chunks reports how many chunks run(n, ...) will produce.
func (p *workerPool) chunks(n int) int {
	if n == 0 {
		return 0
	}
	if n < p.threshold || p.numWorkers == 1 {
		return 1
	}
	size := (n + p.numWorkers - 1) / p.numWorkers
	return (n + size - 1) / size
}

// run splits [0, n) into chunks, executes fn on each and returns once all
// have finished. Small inputs run inline as a single chunk.
func (p *workerPool) run(n int, fn func(index, start, end int)) {
	if n == 0 {
		return
	}
	if n < p.threshold || p.numWorkers == 1 {
		fn(0, 0, n)
		return
	}
	if !p.running {
		p.start()
	}

	size := (n + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for start, idx := 0, 0; start < n; start, idx = start+size, idx+1 {
		end := min(start+size, n)
		p.workChan <- workChunk{index: idx, start: start, end: end, fn: fn}
		dispatched++
	}
	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}

// each runs fn(i) for i in [0, n), one task per chunk. It goes parallel
// only when parallel is true and there is more than one task.
func (p *workerPool) each(n int, parallel bool, fn func(i int)) {
	if n == 0 {
		return
	}
	if !parallel || n == 1 || p.numWorkers == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	if !p.running {
		p.start()
	}
	for i := 0; i < n; i++ {
		p.workChan <- workChunk{index: i, start: i, end: i + 1, fn: func(index, _, _ int) { fn(index) }}
	}
	for i := 0; i < n; i++ {
		<-p.doneChan
	}
}
