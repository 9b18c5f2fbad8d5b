package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/restaurant-booking-ai/internal/pipeline"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

type recordingProcessor struct {
	mu     sync.Mutex
	events []pipeline.Event
	panics bool
}

func (p *recordingProcessor) Process(_ context.Context, evt pipeline.Event) pipeline.Result {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
	if p.panics {
		panic("boom")
	}
	return pipeline.Result{Outcome: pipeline.OutcomeReplied}
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type countingQueue struct {
	*MemoryQueue
	mu      sync.Mutex
	deleted []string
}

func newCountingQueue() *countingQueue {
	return &countingQueue{MemoryQueue: NewMemoryQueue(8)}
}

func (q *countingQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	q.deleted = append(q.deleted, receiptHandle)
	q.mu.Unlock()
	return nil
}

func (q *countingQueue) deletedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deleted)
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestWorkerProcessesPublishedEvents(t *testing.T) {
	queue := newCountingQueue()
	processor := &recordingProcessor{}
	w := New(processor, queue, logging.Discard(), WithWorkerCount(2), WithReceiveWaitSeconds(0), WithReceiveBatchSize(1))
	publisher := NewPublisher(queue, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	for _, id := range []string{"wamid.1", "wamid.2", "wamid.3"} {
		if err := publisher.Publish(ctx, pipeline.Event{RestaurantID: "r", Phone: "6012", Type: pipeline.MessageText, Text: "hi", ExternalID: id}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	waitFor(func() bool { return queue.deletedCount() == 3 }, 2*time.Second, t)
	cancel()
	w.Wait()

	if processor.count() != 3 {
		t.Fatalf("expected 3 processed events, got %d", processor.count())
	}
	seen := map[string]bool{}
	for _, evt := range processor.events {
		seen[evt.ExternalID] = true
	}
	if !seen["wamid.1"] || !seen["wamid.2"] || !seen["wamid.3"] {
		t.Fatalf("unexpected events %+v", processor.events)
	}
}

func TestWorkerDeletesUndecodableAndPanickingMessages(t *testing.T) {
	queue := newCountingQueue()
	processor := &recordingProcessor{panics: true}
	w := New(processor, queue, logging.Discard(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if err := queue.Send(ctx, "not json"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := NewPublisher(queue, nil).Publish(ctx, pipeline.Event{RestaurantID: "r", Phone: "6012", Type: pipeline.MessageText, Text: "hi"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(func() bool { return queue.deletedCount() == 2 }, 2*time.Second, t)
	cancel()
	w.Wait()

	if processor.count() != 1 {
		t.Fatalf("expected the decodable event to reach the processor, got %d", processor.count())
	}
}

func TestDecodeEventRejectsUnknownKind(t *testing.T) {
	if _, err := decodeEvent(`{"id":"x","kind":"other"}`); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestWorkerOptionsClamp(t *testing.T) {
	w := New(&recordingProcessor{}, NewMemoryQueue(1), nil,
		WithWorkerCount(0),
		WithReceiveWaitSeconds(60),
		WithReceiveBatchSize(50),
	)
	if w.cfg.workers != defaultWorkerCount {
		t.Fatalf("expected default worker count, got %d", w.cfg.workers)
	}
	if w.cfg.receiveWaitSecs != maxWaitSeconds {
		t.Fatalf("expected wait clamp to %d, got %d", maxWaitSeconds, w.cfg.receiveWaitSecs)
	}
	if w.cfg.receiveBatchSize != maxReceiveBatchSize {
		t.Fatalf("expected batch clamp to %d, got %d", maxReceiveBatchSize, w.cfg.receiveBatchSize)
	}
}
