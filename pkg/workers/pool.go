// Package workers provides in-process consumers for dispatched
// messages. Each worker drains its own buffered inbox on a dedicated
// goroutine; the dispatcher's broadcast loop never blocks on a slow
// consumer, it only fills inboxes.
package workers

import (
	"fmt"
	"sync"

	"github.com/cedricgc/firehose/pkg/dispatch"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HandlerFunc processes one dispatched message. Workers filter by
// channel themselves; every worker receives every broadcast message.
type HandlerFunc func(msg dispatch.Message)

// Config holds worker pool configuration.
type Config struct {
	// Workers is the number of consumers to run.
	Workers int

	// InboxSize is the per-worker buffer. When an inbox is full,
	// further messages for that worker are dropped and counted.
	InboxSize int
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		InboxSize: 256,
	}
}

// Worker consumes broadcast messages from its inbox.
type Worker struct {
	id      string
	inbox   chan dispatch.Message
	handler HandlerFunc
	logger  zerolog.Logger

	dropped int
	mu      sync.Mutex
}

// Send implements dispatch.Subscriber. It never blocks; messages that
// do not fit the inbox are dropped.
func (w *Worker) Send(msg dispatch.Message) {
	select {
	case w.inbox <- msg:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
		w.logger.Warn().
			Str("channel", msg.Channel).
			Msg("Inbox full - message dropped")
	}
}

// Dropped returns how many messages this worker has dropped.
func (w *Worker) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// run drains the inbox until it is closed.
func (w *Worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	processed := 0
	for msg := range w.inbox {
		w.handler(msg)
		processed++
	}

	w.logger.Debug().
		Int("processed", processed).
		Msg("Worker stopped")
}

// Pool runs a fixed set of workers registered with a dispatcher.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
	logger  zerolog.Logger

	stopOnce sync.Once
}

// NewPool creates the workers and starts their goroutines. Each worker
// is registered with the dispatcher under ids "worker-0".."worker-N".
func NewPool(d *dispatch.Dispatcher, cfg Config, handler HandlerFunc) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultConfig().InboxSize
	}

	pool := &Pool{
		logger: log.With().Str("component", "workers").Logger(),
	}

	for i := 0; i < cfg.Workers; i++ {
		id := fmt.Sprintf("worker-%d", i)
		w := &Worker{
			id:      id,
			inbox:   make(chan dispatch.Message, cfg.InboxSize),
			handler: handler,
			logger:  log.With().Str("component", "workers").Str("worker", id).Logger(),
		}
		pool.workers = append(pool.workers, w)
		pool.wg.Add(1)
		go w.run(&pool.wg)
		d.Register(id, w)
	}

	pool.logger.Info().
		Int("workers", cfg.Workers).
		Int("inbox_size", cfg.InboxSize).
		Msg("Worker pool started")

	return pool
}

// Stop closes all inboxes and waits for the workers to finish draining.
// The pool must be unregistered or the dispatcher stopped first;
// sending to a stopped pool panics.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		for _, w := range p.workers {
			close(w.inbox)
		}
		p.wg.Wait()
		p.logger.Info().Msg("Worker pool stopped")
	})
}

// Workers returns the pool's workers, mainly for tests.
func (p *Pool) Workers() []*Worker {
	return p.workers
}
