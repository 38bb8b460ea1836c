package client

import (
	"sync"
	"time"
)

const DefaultDebounce = 500 * time.Millisecond

type pendingTask struct {
	timer *time.Timer
	fn    func()
	gen   uint64
}

// Debouncer 按键延迟执行：静默期内重复 Trigger 会重置计时器，只执行最后一次提交的任务
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	gen     uint64
	pending map[string]*pendingTask
	exec    sync.Mutex // 串行执行任务
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, pending: make(map[string]*pendingTask)}
}

func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending[key] = &pendingTask{
		fn:    fn,
		gen:   gen,
		timer: time.AfterFunc(d.delay, func() { d.fire(key, gen) }),
	}
}

func (d *Debouncer) fire(key string, gen uint64) {
	d.exec.Lock()
	defer d.exec.Unlock()

	d.mu.Lock()
	p, ok := d.pending[key]
	// 计时器已被重置或已被 Flush 执行
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	p.fn()
}

// Cancel 丢弃某个键上尚未执行的任务
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
}

func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Flush 立即执行所有待执行任务，并等待已经在执行的任务结束
func (d *Debouncer) Flush() {
	d.exec.Lock()
	defer d.exec.Unlock()

	d.mu.Lock()
	tasks := make([]func(), 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		tasks = append(tasks, p.fn)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}
}

// Stop 丢弃所有待执行任务
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}
