// Package transform runs upstream record normalization off the caller
// goroutine. Large batches are chunked across a worker pool; small batches
// and pool failures fall back to synchronous normalization with identical
// output.
package transform

import (
	"context"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"launchfeed/internal/domain"
	"launchfeed/internal/normalize"
	"launchfeed/internal/observability"
)

// SyncThreshold is the batch size below which transformation stays on the
// caller goroutine. Pool dispatch overhead dominates for small batches.
const SyncThreshold = 50

// PoolOptions configures a transform pool. Zero values take the defaults.
type PoolOptions struct {
	// Workers is the number of transform goroutines. Defaults to GOMAXPROCS.
	Workers int
	// ChunkSize is the number of records handed to one worker at a time.
	ChunkSize int

	Logger *log.Logger
}

// Pool is a lazily started worker pool for batch normalization. The zero
// value is not usable; create one with NewPool. A Pool that has not been
// started, or has been stopped, transforms synchronously.
type Pool struct {
	opts PoolOptions

	startOnce sync.Once
	jobs      chan job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   atomic.Bool
	processed int64
}

type job struct {
	raws []domain.UpstreamRecord
	out  []*domain.Token // shared result slice, pre-sized
	off  int
	done *sync.WaitGroup
}

// NewPool creates a transform pool. Workers are not started until the
// first batch crosses SyncThreshold.
func NewPool(opts PoolOptions) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Pool{opts: opts}
}

// start launches the workers. Idempotent.
func (p *Pool) start() {
	p.startOnce.Do(func() {
		p.jobs = make(chan job, p.opts.Workers*2)
		for i := 0; i < p.opts.Workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
		p.running.Store(true)
		p.opts.Logger.Printf("[transform] pool started with %d workers", p.opts.Workers)
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		for i, raw := range j.raws {
			j.out[j.off+i] = normalize.Token(raw)
		}
		atomic.AddInt64(&p.processed, int64(len(j.raws)))
		j.done.Done()
	}
}

// Stop shuts the workers down. Subsequent batches transform synchronously.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.Swap(false) {
		return
	}
	close(p.jobs)
	p.wg.Wait()
	p.opts.Logger.Printf("[transform] pool stopped, %d records processed", atomic.LoadInt64(&p.processed))
}

// Transform normalizes a single record on the caller goroutine.
func (p *Pool) Transform(raw domain.UpstreamRecord) *domain.Token {
	return normalize.Token(raw)
}

// TransformBatch normalizes a batch of records. Batches at or above
// SyncThreshold are chunked across the pool, starting it on first use;
// smaller batches, and all batches after Stop, run on the caller
// goroutine. Output order matches input order on both paths.
func (p *Pool) TransformBatch(ctx context.Context, raws []domain.UpstreamRecord) []*domain.Token {
	started := time.Now()
	runSync := len(raws) < SyncThreshold || ctx.Err() != nil

	if !runSync {
		p.start()
		p.mu.RLock()
		runSync = !p.running.Load()
		if runSync {
			p.mu.RUnlock()
		} else {
			defer p.mu.RUnlock()
		}
	}

	if runSync {
		out := make([]*domain.Token, len(raws))
		for i, raw := range raws {
			out[i] = normalize.Token(raw)
		}
		observability.RecordBatchTransform(time.Since(started).Seconds(), true)
		return out
	}

	out := make([]*domain.Token, len(raws))
	var done sync.WaitGroup
	for off := 0; off < len(raws); off += p.opts.ChunkSize {
		end := off + p.opts.ChunkSize
		if end > len(raws) {
			end = len(raws)
		}
		done.Add(1)
		p.jobs <- job{raws: raws[off:end], out: out, off: off, done: &done}
	}
	done.Wait()

	observability.RecordBatchTransform(time.Since(started).Seconds(), false)
	return out
}
