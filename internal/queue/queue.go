package queue

import (
	"sync"
)

type Error uint8

const (
	ErrQueueIsStopped Error = 1
)

func (e Error) Error() string {
	switch e {
	case ErrQueueIsStopped:
		return "queue is stopped"
	default:
		return "unknown error"
	}
}

// Queue runs tasks one at a time, in push order, on a single goroutine.
// Pushing never blocks, so a running task may push follow-up tasks.
type Queue struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool
	signal  chan struct{}
	done    chan struct{}
}

func New() *Queue {
	mq := &Queue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go mq.run()
	return mq
}

func (mq *Queue) run() {
	defer close(mq.done)
	for {
		task, ok := mq.next()
		if !ok {
			return
		}
		if task != nil {
			task()
			continue
		}
		<-mq.signal
	}
}

// next pops the head task. A nil task with ok means the queue is idle.
func (mq *Queue) next() (func(), bool) {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if len(mq.tasks) > 0 {
		task := mq.tasks[0]
		mq.tasks[0] = nil
		mq.tasks = mq.tasks[1:]
		return task, true
	}
	if mq.stopped {
		return nil, false
	}
	return nil, true
}

func (mq *Queue) wake() {
	select {
	case mq.signal <- struct{}{}:
	default:
	}
}

// Close refuses new tasks. Tasks already queued still run; Done is closed
// after the last one returns.
func (mq *Queue) Close() {
	mq.mu.Lock()
	mq.stopped = true
	mq.mu.Unlock()
	mq.wake()
}

func (mq *Queue) Done() <-chan struct{} {
	return mq.done
}

func (mq *Queue) Push(task func()) error {
	mq.mu.Lock()
	if mq.stopped {
		mq.mu.Unlock()
		return ErrQueueIsStopped
	}
	mq.tasks = append(mq.tasks, task)
	mq.mu.Unlock()
	mq.wake()
	return nil
}
