package jobs

import (
	"context"
	"sync"
	"time"
)

// CheckFunc runs one poll. Returning true finishes the task.
type CheckFunc func(ctx context.Context) (done bool)

type pollTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// EntryPoller runs one self-rescheduling timer per key.
// The timer is re-armed only after the previous check returned, so checks never pile up.
type EntryPoller struct {
	interval time.Duration

	mu    sync.Mutex
	tasks map[string]*pollTask
}

func NewEntryPoller(interval time.Duration) *EntryPoller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &EntryPoller{
		interval: interval,
		tasks:    make(map[string]*pollTask),
	}
}

// Interval returns the delay between two checks of the same key
func (p *EntryPoller) Interval() time.Duration {
	return p.interval
}

// Start schedules check for key. It is a no-op when key is already polled.
func (p *EntryPoller) Start(ctx context.Context, key string, check CheckFunc) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tasks[key]; ok {
		return false
	}

	taskCtx, cancel := context.WithCancel(ctx)
	task := &pollTask{cancel: cancel, done: make(chan struct{})}
	p.tasks[key] = task

	go p.run(taskCtx, key, task, check)
	return true
}

func (p *EntryPoller) run(ctx context.Context, key string, task *pollTask, check CheckFunc) {
	defer close(task.done)
	defer p.release(key, task)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if check(ctx) {
			return
		}
		if ctx.Err() != nil {
			return
		}
		timer.Reset(p.interval)
	}
}

// release drops the task only if it still owns key; a restarted task must survive
func (p *EntryPoller) release(key string, task *pollTask) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.tasks[key]; ok && current == task {
		task.cancel()
		delete(p.tasks, key)
	}
}

// Stop cancels the task of key; a check already running sees a cancelled context
func (p *EntryPoller) Stop(key string) {
	p.mu.Lock()
	task, ok := p.tasks[key]
	if ok {
		delete(p.tasks, key)
	}
	p.mu.Unlock()

	if ok {
		task.cancel()
	}
}

// StopAll cancels every task and waits for running checks to return
func (p *EntryPoller) StopAll() {
	p.mu.Lock()
	tasks := make([]*pollTask, 0, len(p.tasks))
	for key, task := range p.tasks {
		tasks = append(tasks, task)
		delete(p.tasks, key)
	}
	p.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
	}
	for _, task := range tasks {
		<-task.done
	}
}

// Active reports whether key is currently polled
func (p *EntryPoller) Active(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tasks[key]
	return ok
}

// Count returns the number of polled keys
func (p *EntryPoller) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}
