package bot

import (
	"sync"

	"go.uber.org/zap"
)

// serialQueue runs jobs with the same key one after another, in submission
// order. A key has a draining goroutine only while it has pending jobs.
type serialQueue struct {
	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
	log    *zap.Logger
}

func newSerialQueue(log *zap.Logger) *serialQueue {
	return &serialQueue{
		queues: make(map[int64][]func()),
		log:    log,
	}
}

func (q *serialQueue) Submit(key int64, job func()) {
	q.mu.Lock()
	pending, running := q.queues[key]
	q.queues[key] = append(pending, job)
	if !running {
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if !running {
		go q.drain(key)
	}
}

// Wait blocks until every submitted job has run.
func (q *serialQueue) Wait() {
	q.wg.Wait()
}

func (q *serialQueue) drain(key int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		jobs := q.queues[key]
		if len(jobs) == 0 {
			delete(q.queues, key)
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		q.queues[key] = jobs[1:]
		q.mu.Unlock()

		q.run(key, job)
	}
}

func (q *serialQueue) run(key int64, job func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("job panicked", zap.Int64("chat_id", key), zap.Any("panic", r))
		}
	}()
	job()
}
