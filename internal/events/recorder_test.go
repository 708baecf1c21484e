package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

type captureProducer struct {
	mu       sync.Mutex
	messages [][]byte
}

func (p *captureProducer) Produce(ctx context.Context, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, value)
	return nil
}

func (p *captureProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

type captureBatch struct {
	mu      sync.Mutex
	batches [][][]interface{}
}

func (b *captureBatch) BatchInsert(ctx context.Context, query string, rows [][]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, rows)
	return nil
}

func (b *captureBatch) snapshot() [][][]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][][]interface{}, len(b.batches))
	copy(out, b.batches)
	return out
}

func TestRecordBuffersUntilFlushSize(t *testing.T) {
	producer := &captureProducer{}
	sink := &captureBatch{}
	r := newRecorder(producer, sink, 3, time.Hour)
	defer r.Close()

	ctx := context.Background()
	r.Record(ctx, Event{Type: TypeAccountFrozen, Phone: "771234567"})
	r.Record(ctx, Event{Type: TypeOTPCeilingHit, Phone: "771234567"})

	// Kafka sees every event immediately; ClickHouse waits for the batch.
	if got := producer.count(); got != 2 {
		t.Fatalf("kafka messages = %d, want 2", got)
	}
	if got := len(sink.snapshot()); got != 0 {
		t.Fatalf("batches before flush size = %d, want 0", got)
	}

	r.Record(ctx, Event{Type: TypeTokenReuse, Phone: "771234567"})

	batches := sink.snapshot()
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	if len(batches[0]) != 3 {
		t.Fatalf("batch rows = %d, want 3", len(batches[0]))
	}
	if batches[0][0][0] != string(TypeAccountFrozen) {
		t.Fatalf("first row type = %v, want %s", batches[0][0][0], TypeAccountFrozen)
	}
}

func TestCloseFlushesRemainder(t *testing.T) {
	sink := &captureBatch{}
	r := newRecorder(nil, sink, 100, time.Hour)

	r.Record(context.Background(), Event{Type: TypeSessionRevoked, UserID: "user-1"})
	r.Close()

	batches := sink.snapshot()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("batches after close = %+v, want one single-row batch", batches)
	}
}

func TestNilRecorderIsInert(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), Event{Type: TypePasswordChanged})
	r.Close()
}
