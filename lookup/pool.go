// Package lookup resolves employee names in the background after an id
// cell changes.
package lookup

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

type Directory interface {
	EmployeeName(ctx context.Context, empID string) (string, error)
}

// Result is a resolved name for the name column of a row.
type Result struct {
	Key   string
	Field string
	EmpID string
	Name  string
}

type job struct {
	key, field, empID string
}

// Pool runs lookups on a fixed number of workers. Results are handed to
// deliver, which must move them to the goroutine that owns the grid.
type Pool struct {
	dir     Directory
	deliver func(Result)

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	jobs   chan job

	once sync.Once
}

func NewPool(parent context.Context, dir Directory, workers int, deliver func(Result)) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(parent)
	p := &Pool{
		dir:     dir,
		deliver: deliver,
		ctx:     ctx,
		cancel:  cancel,
		group:   &errgroup.Group{},
		jobs:    make(chan job, workers*16),
	}
	for i := 0; i < workers; i++ {
		p.group.Go(p.work)
	}
	return p
}

// Submit queues a lookup without blocking, since results are delivered to the
// caller's own goroutine. It reports false when the pool is closed or full.
func (p *Pool) Submit(key, field, empID string) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case p.jobs <- job{key: key, field: field, empID: empID}:
		return true
	default:
		glog.Warningf("lookup queue full, dropping lookup of %s", empID)
		return false
	}
}

// Close cancels queued and running lookups and waits for the workers.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.cancel()
		_ = p.group.Wait()
	})
}

func (p *Pool) work() error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case j := <-p.jobs:
			p.run(j)
		}
	}
}

func (p *Pool) run(j job) {
	name, err := p.dir.EmployeeName(p.ctx, j.empID)
	if err != nil {
		if p.ctx.Err() == nil {
			glog.Warningf("employee lookup for %s failed: %v", j.empID, err)
		}
		return
	}
	if name == "" || p.ctx.Err() != nil {
		return
	}
	p.deliver(Result{Key: j.key, Field: j.field, EmpID: j.empID, Name: name})
}
