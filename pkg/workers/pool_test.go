package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cedricgc/firehose/pkg/client"
	"github.com/cedricgc/firehose/pkg/dispatch"
	"github.com/cedricgc/firehose/pkg/queue"
)

func newDispatcher() *dispatch.Dispatcher {
	return dispatch.New(queue.New(queue.Config{Name: "workers-test", FloorInterval: time.Millisecond}), nil)
}

func TestPool_EveryWorkerReceivesEveryMessage(t *testing.T) {
	d := newDispatcher()

	var received atomic.Int64
	pool := NewPool(d, Config{Workers: 3, InboxSize: 8}, func(msg dispatch.Message) {
		received.Add(1)
	})

	d.Dispatch(context.Background(), client.Thing{
		Kind: "t1",
		Data: client.ThingData{ID: "aaa", Author: "alice"},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && received.Load() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	if received.Load() != 3 {
		t.Errorf("Received = %d, want 3 (broadcast to all workers)", received.Load())
	}

	for _, w := range pool.Workers() {
		d.Unregister(w.id)
	}
	pool.Stop()
}

func TestPool_StopDrainsInboxes(t *testing.T) {
	d := newDispatcher()

	var mu sync.Mutex
	var handled []string
	pool := NewPool(d, Config{Workers: 1, InboxSize: 16}, func(msg dispatch.Message) {
		mu.Lock()
		handled = append(handled, msg.Channel)
		mu.Unlock()
	})

	w := pool.Workers()[0]
	for i := 0; i < 5; i++ {
		w.Send(dispatch.Message{Channel: "comments"})
	}

	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 5 {
		t.Errorf("Handled = %d messages, want 5 (drained before stop)", len(handled))
	}
}

func TestWorker_FullInboxDropsWithoutBlocking(t *testing.T) {
	d := newDispatcher()

	block := make(chan struct{})
	pool := NewPool(d, Config{Workers: 1, InboxSize: 1}, func(msg dispatch.Message) {
		<-block
	})
	w := pool.Workers()[0]

	// One in-flight, one buffered, the rest must drop without blocking.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			w.Send(dispatch.Message{Channel: "posts"})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a full inbox")
	}

	if w.Dropped() == 0 {
		t.Error("Expected dropped messages on a full inbox")
	}

	close(block)
	d.Unregister(w.id)
	pool.Stop()
}
