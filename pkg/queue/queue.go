// SPDX-License-Identifier: GPL-2.0-or-later

// Package queue runs functions in order on background goroutines.
package queue

import "sync"

// Dispatcher schedules a function to run asynchronously.
type Dispatcher interface {
	Dispatch(func())
}

// DispatchFunc adapts an ordinary function to the Dispatcher interface.
type DispatchFunc func(func())

// Dispatch calls fn(f).
func (fn DispatchFunc) Dispatch(f func()) {
	fn(f)
}

// Go is a Dispatcher that runs every function on a new goroutine.
var Go = DispatchFunc(func(f func()) { go f() })

// Serial is a strictly ordered task queue. Tasks run one at a time in
// the order they were dispatched. Dispatch never blocks, the queue is
// unbounded. A worker goroutine only exists while tasks are pending.
type Serial struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

// NewSerial returns an empty queue.
func NewSerial() *Serial {
	return &Serial{}
}

// Dispatch appends f to the queue.
func (q *Serial) Dispatch(f func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = append(q.tasks, f)
	if !q.running {
		q.running = true
		go q.drain()
	}
}

func (q *Serial) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			q.tasks = nil
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}

// Len returns the number of tasks waiting to run.
func (q *Serial) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Sync blocks until every task dispatched before the call has run.
// Must not be called from a task on the same queue.
func (q *Serial) Sync() {
	done := make(chan struct{})
	q.Dispatch(func() { close(done) })
	<-done
}
