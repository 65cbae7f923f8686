package reader

import (
	"context"
	"sync"
)

type job struct {
	run    func(ctx context.Context)
	cancel func()
}

// Pool is the worker set behind a Reader. Jobs run FIFO; Cancel abandons
// queued and running jobs, Close also waits for the workers to exit.
type Pool struct {
	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	wake   chan struct{}
	mu     sync.Mutex
	queue  []*job
	active map[*job]struct{}
	closed bool
}

func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	p := &Pool{
		ctx:    ctx,
		stop:   stop,
		wake:   make(chan struct{}, 1),
		active: make(map[*job]struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Context is canceled when the pool closes.
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Go schedules fn and resolves f with its result. If the job is abandoned,
// f resolves with canceled and ErrCanceled.
func Go[T any](p *Pool, f *Future[T], canceled T, fn func(ctx context.Context) (T, error)) *Future[T] {
	p.submit(&job{
		run: func(ctx context.Context) {
			if f.Ready() {
				return
			}
			v, err := fn(ctx)
			f.Resolve(v, err)
		},
		cancel: func() {
			f.Resolve(canceled, ErrCanceled)
		},
	})
	return f
}

func (p *Pool) submit(j *job) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		j.cancel()
		return
	}
	p.queue = append(p.queue, j)
	p.mu.Unlock()
	p.signal()
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) next() *job {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	j := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.active[j] = struct{}{}
	if len(p.queue) > 0 {
		p.signal()
	}
	return j
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}
		for j := p.next(); j != nil; j = p.next() {
			j.run(p.ctx)
			p.mu.Lock()
			delete(p.active, j)
			p.mu.Unlock()
			if p.ctx.Err() != nil {
				return
			}
		}
	}
}

// Cancel resolves every queued and running job as canceled. Running jobs
// keep going but their results are dropped.
func (p *Pool) Cancel() {
	p.mu.Lock()
	jobs := p.queue
	p.queue = nil
	for j := range p.active {
		jobs = append(jobs, j)
	}
	p.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
}

// Pending returns the number of queued jobs.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close cancels outstanding work and waits for the workers to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.Cancel()
	p.stop()
	p.wg.Wait()
}
