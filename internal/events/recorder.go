// Package events records security-relevant happenings (freezes, ceilings,
// token reuse) to Kafka and ClickHouse. Recording is best effort: a sink
// failure is logged and never fails the request that produced the event.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/util"
)

type EventType string

const (
	TypeAccountFrozen     EventType = "account_frozen"
	TypeOTPCeilingHit     EventType = "otp_ceiling_hit"
	TypeOTPTokenMismatch  EventType = "otp_token_mismatch"
	TypeLoginRateLimited  EventType = "login_rate_limited"
	TypeTokenReuse        EventType = "refresh_token_reuse"
	TypePasswordChanged   EventType = "password_changed"
	TypeSessionRevoked    EventType = "session_revoked"
	TypeAccountRegistered EventType = "account_registered"
)

type Event struct {
	Type   EventType `json:"type"`
	Phone  string    `json:"phone,omitempty"`
	UserID string    `json:"user_id,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

const insertEventQuery = `INSERT INTO security_events (event_type, phone, user_id, detail, created_at)`

const (
	defaultFlushSize     = 100
	defaultFlushInterval = 5 * time.Second
)

type producerSink interface {
	Produce(ctx context.Context, key, value []byte) error
}

type batchSink interface {
	BatchInsert(ctx context.Context, query string, rows [][]interface{}) error
}

// Recorder fans events out to the configured sinks. Either sink may be nil.
// Kafka publishes happen per event (the writer batches asynchronously);
// ClickHouse rows are buffered and flushed on size, on a timer, and on Close.
type Recorder struct {
	producer producerSink
	sink     batchSink

	mu        sync.Mutex
	buffer    []Event
	flushSize int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewRecorder(producer *client.KafkaProducer, clickhouse *client.ClickHouseClient) *Recorder {
	var p producerSink
	if producer != nil {
		p = producer
	}
	var b batchSink
	if clickhouse != nil {
		b = clickhouse
	}
	return newRecorder(p, b, defaultFlushSize, defaultFlushInterval)
}

func newRecorder(producer producerSink, sink batchSink, flushSize int, interval time.Duration) *Recorder {
	r := &Recorder{
		producer:  producer,
		sink:      sink,
		flushSize: flushSize,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.flushLoop(interval)
	return r
}

// Record publishes the event. Safe to call on a nil Recorder.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	if r.producer != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			if err := r.producer.Produce(ctx, []byte(ev.Type), payload); err != nil {
				util.Warn("failed to publish security event",
					zap.String("event_type", string(ev.Type)),
					zap.Error(err))
			}
		}
	}

	if r.sink == nil {
		return
	}
	r.mu.Lock()
	r.buffer = append(r.buffer, ev)
	full := len(r.buffer) >= r.flushSize
	r.mu.Unlock()
	if full {
		r.flush(ctx)
	}
}

// flush drains the buffer into a single ClickHouse batch.
func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	rows := make([][]interface{}, 0, len(batch))
	for _, ev := range batch {
		rows = append(rows, []interface{}{string(ev.Type), ev.Phone, ev.UserID, ev.Detail, ev.At})
	}
	if err := r.sink.BatchInsert(ctx, insertEventQuery, rows); err != nil {
		util.Warn("failed to store security events",
			zap.Int("count", len(rows)),
			zap.Error(err))
	}
}

func (r *Recorder) flushLoop(interval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.flush(context.Background())
		case <-r.stop:
			r.flush(context.Background())
			return
		}
	}
}

// Close stops the flush loop after a final flush. Safe on a nil Recorder.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}
