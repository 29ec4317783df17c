// Package queue implements a strict one-at-a-time FIFO task scheduler
// with an adaptive inter-task delay derived from upstream rate-limit
// headers. It throttles only toward a one-per-interval floor: when the
// learned rate exceeds one task per second no artificial delay is
// applied.
package queue

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for scheduler operations.
var (
	tasksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firehose_scheduler_tasks_total",
		Help: "Total tasks processed by scheduler and outcome",
	}, []string{"scheduler", "outcome"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "firehose_scheduler_queue_depth",
		Help: "Number of tasks waiting in the scheduler queue",
	}, []string{"scheduler"})

	currentRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "firehose_scheduler_rate",
		Help: "Current learned allowance in tasks per second",
	}, []string{"scheduler"})
)

const (
	// DefaultFloorInterval is the minimum spacing between task starts
	// when the learned rate is at or below one per second.
	DefaultFloorInterval = time.Second

	// minRate keeps the stored rate strictly positive; any value at or
	// below 1 behaves identically (floor spacing applies).
	minRate = 0.001
)

// Task is a unit of deferred work. The task must call done exactly once
// on every exit path; until it does, no further task starts. done is
// safe to call more than once (extra calls are ignored) and safe to call
// from any goroutine.
type Task func(done func())

// Config holds scheduler configuration.
type Config struct {
	// Name labels log events and metrics for this scheduler instance.
	Name string

	// FloorInterval overrides DefaultFloorInterval (mainly for tests).
	FloorInterval time.Duration
}

// Scheduler is an ordered task queue with exactly one task in flight.
// All scheduling state is owned by the processing goroutine and the
// mutex; callers interact only through Push and SetRate.
type Scheduler struct {
	name     string
	interval time.Duration
	logger   zerolog.Logger

	mu           sync.Mutex
	pending      []Task
	running      bool
	rate         float64
	lastDispatch time.Time
}

// New creates a scheduler with a conservative default rate of one task
// per second.
func New(cfg Config) *Scheduler {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.FloorInterval <= 0 {
		cfg.FloorInterval = DefaultFloorInterval
	}

	return &Scheduler{
		name:     cfg.Name,
		interval: cfg.FloorInterval,
		logger:   log.With().Str("component", "scheduler").Str("scheduler", cfg.Name).Logger(),
		rate:     1,
	}
}

// Push appends a task to the tail of the queue. If the scheduler is
// idle, processing begins immediately; otherwise the task waits its
// turn. Tasks run strictly in push order and are never retried or
// cancelled.
func (s *Scheduler) Push(task Task) {
	s.mu.Lock()
	s.pending = append(s.pending, task)
	queueDepth.WithLabelValues(s.name).Set(float64(len(s.pending)))
	if !s.running {
		s.running = true
		go s.run()
	}
	s.mu.Unlock()
}

// SetRate updates the learned allowance from upstream rate-limit
// metadata: remaining requests divided by seconds until the window
// resets. A non-positive reset window falls back to one per second.
// Callers skip this entirely when the upstream signal is absent or
// malformed, leaving the previous rate authoritative.
func (s *Scheduler) SetRate(remaining float64, resetSeconds int) {
	rate := 1.0
	if resetSeconds > 0 {
		rate = remaining / float64(resetSeconds)
	}
	if rate <= 0 {
		rate = minRate
	}

	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()

	currentRate.WithLabelValues(s.name).Set(rate)

	if rate <= 1 {
		s.logger.Warn().
			Float64("rate", rate).
			Float64("remaining", remaining).
			Int("reset_seconds", resetSeconds).
			Msg("Allowance low - floor throttling active")
	} else {
		s.logger.Debug().
			Float64("rate", rate).
			Msg("Rate updated")
	}
}

// Rate returns the current learned rate in tasks per second.
func (s *Scheduler) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// Pending returns the number of queued tasks not yet started.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// delayLocked computes the pre-dispatch delay. Caller holds s.mu.
// Rates above one task per second impose no artificial delay; at or
// below, task starts are spaced at least one floor interval apart.
func (s *Scheduler) delayLocked(now time.Time) time.Duration {
	if s.rate > 1 {
		return 0
	}
	elapsed := now.Sub(s.lastDispatch)
	if elapsed >= s.interval {
		return 0
	}
	return s.interval - elapsed
}

// run is the processing loop. It drains the queue one task at a time
// and exits when the queue is empty; Push starts a new loop as needed.
func (s *Scheduler) run() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.running = false
			queueDepth.WithLabelValues(s.name).Set(0)
			s.mu.Unlock()
			return
		}

		task := s.pending[0]
		s.pending = s.pending[1:]
		queueDepth.WithLabelValues(s.name).Set(float64(len(s.pending)))
		delay := s.delayLocked(time.Now())
		s.mu.Unlock()

		if delay > 0 {
			s.logger.Debug().
				Dur("delay", delay).
				Msg("Throttling before dispatch")
			time.Sleep(delay)
		}

		s.mu.Lock()
		s.lastDispatch = time.Now()
		s.mu.Unlock()

		s.execute(task)
	}
}

// execute runs one task and blocks until its completion handle fires.
// The handle is fulfillable only once; a panicking task is recovered,
// logged, and completed so the queue always advances.
func (s *Scheduler) execute(task Task) {
	completed := make(chan struct{})
	var once sync.Once
	done := func() {
		once.Do(func() { close(completed) })
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Interface("panic", r).
					Msg("Task panicked - completing to preserve queue liveness")
				tasksProcessedTotal.WithLabelValues(s.name, "panic").Inc()
				done()
			}
		}()
		task(done)
	}()

	<-completed
	tasksProcessedTotal.WithLabelValues(s.name, "done").Inc()
}
