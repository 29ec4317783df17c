// Package dispatch fans parsed models out to registered workers. Each
// eligible model is broadcast to every subscriber on a named channel
// derived from its kind; records by deleted or removed authors and
// records of unknown kinds are dropped silently.
package dispatch

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/cedricgc/firehose/pkg/client"
	"github.com/cedricgc/firehose/pkg/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for dispatch operations.
var (
	dispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firehose_dispatched_total",
		Help: "Total models broadcast by channel",
	}, []string{"channel"})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firehose_dispatch_dropped_total",
		Help: "Total models dropped before broadcast by reason",
	}, []string{"reason"})

	subscriberCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "firehose_subscribers",
		Help: "Number of registered subscribers",
	})
)

// Channel names by model kind. Unknown kinds map to no channel and are
// dropped.
var channelByKind = map[string]string{
	"t1": "comments",
	"t3": "posts",
}

// deletedAuthors marks records whose author was deleted or removed.
// Matched case-insensitively.
var deletedAuthors = map[string]struct{}{
	"[deleted]": {},
	"[removed]": {},
}

// Message is what every subscriber receives: the routing channel plus
// the model's raw payload.
type Message struct {
	Channel string          `json:"channel"`
	Model   json.RawMessage `json:"model"`
}

// Subscriber accepts broadcast messages. Send must not block the
// dispatcher; implementations own their buffering.
type Subscriber interface {
	Send(msg Message)
}

// Deduper remembers dispatched fullnames across restarts. The Redis
// store in pkg/seen implements it.
type Deduper interface {
	MarkSeen(ctx context.Context, fullname string) (bool, error)
}

// Dispatcher broadcasts eligible models to all registered subscribers
// in order, one at a time, on its own scheduler instance.
type Dispatcher struct {
	scheduler *queue.Scheduler
	deduper   Deduper
	logger    zerolog.Logger

	mu   sync.RWMutex
	subs map[string]Subscriber
}

// New creates a dispatcher with its own scheduler.
func New(scheduler *queue.Scheduler, deduper Deduper) *Dispatcher {
	if scheduler == nil {
		scheduler = queue.New(queue.Config{Name: "dispatch"})
	}
	return &Dispatcher{
		scheduler: scheduler,
		deduper:   deduper,
		subs:      make(map[string]Subscriber),
		logger:    log.With().Str("component", "dispatcher").Logger(),
	}
}

// Register adds or replaces a subscriber under the given id.
func (d *Dispatcher) Register(id string, sub Subscriber) {
	d.mu.Lock()
	d.subs[id] = sub
	subscriberCount.Set(float64(len(d.subs)))
	d.mu.Unlock()

	d.logger.Info().Str("subscriber", id).Msg("Subscriber registered")
}

// Unregister removes a subscriber. Unknown ids are a no-op.
func (d *Dispatcher) Unregister(id string) {
	d.mu.Lock()
	delete(d.subs, id)
	subscriberCount.Set(float64(len(d.subs)))
	d.mu.Unlock()

	d.logger.Info().Str("subscriber", id).Msg("Subscriber unregistered")
}

// Subscribers returns the current number of registered subscribers.
func (d *Dispatcher) Subscribers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Dispatch enqueues one model for ordered broadcast. Completion is
// signaled as soon as the broadcast loop finishes; there is no
// acknowledgment from workers.
func (d *Dispatcher) Dispatch(ctx context.Context, thing client.Thing) {
	d.scheduler.Push(func(done func()) {
		defer done()
		d.broadcast(ctx, thing)
	})
}

// broadcast applies the content filter, the channel-routing rule, and
// dedup, then sends to every registered subscriber.
func (d *Dispatcher) broadcast(ctx context.Context, thing client.Thing) {
	author := strings.ToLower(thing.Data.Author)
	if _, gone := deletedAuthors[author]; gone {
		droppedTotal.WithLabelValues("deleted_author").Inc()
		return
	}

	channel, known := channelByKind[thing.Kind]
	if !known {
		droppedTotal.WithLabelValues("unknown_kind").Inc()
		d.logger.Debug().
			Str("kind", thing.Kind).
			Msg("No channel for kind - dropping")
		return
	}

	if d.deduper != nil {
		fullname := thing.Fullname()
		first, err := d.deduper.MarkSeen(ctx, fullname)
		if err != nil {
			// Fail open: duplicate delivery beats dropped records.
			d.logger.Warn().
				Err(err).
				Str("fullname", fullname).
				Msg("Dedup check failed - broadcasting anyway")
		} else if !first {
			droppedTotal.WithLabelValues("duplicate").Inc()
			d.logger.Debug().
				Str("fullname", fullname).
				Msg("Already dispatched - dropping")
			return
		}
	}

	msg := Message{
		Channel: channel,
		Model:   thing.Data.Raw,
	}

	d.mu.RLock()
	subs := make([]Subscriber, 0, len(d.subs))
	for _, sub := range d.subs {
		subs = append(subs, sub)
	}
	d.mu.RUnlock()

	for _, sub := range subs {
		sub.Send(msg)
	}

	dispatchedTotal.WithLabelValues(channel).Inc()
}
