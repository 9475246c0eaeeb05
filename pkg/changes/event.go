package changes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
)

// Operation represents Debezium operation codes
type Operation string

const (
	OpCreate Operation = "c" // create/insert
	OpUpdate Operation = "u" // update
	OpDelete Operation = "d" // delete
)

// Source describes where the change happened.
type Source struct {
	Connector string `json:"connector"`
	Table     string `json:"table"`
	TsMs      int64  `json:"ts_ms"`
}

// Payload contains the change in Debezium layout. Before is nil for
// inserts; After is nil for deletes.
type Payload struct {
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
	Source Source         `json:"source"`
	Op     Operation      `json:"op"`
	TsMs   int64          `json:"ts_ms"`
}

// Event is a single row change emitted after a successful write.
type Event struct {
	// Key is the primary key value of the changed row.
	Key     int64   `json:"key"`
	Payload Payload `json:"payload"`
}

// NewEvent stamps an event with the current time.
func NewEvent(op Operation, connector, table string, key int64, before, after map[string]any) Event {
	now := time.Now().UnixMilli()
	return Event{
		Key: key,
		Payload: Payload{
			Before: before,
			After:  after,
			Source: Source{
				Connector: connector,
				Table:     table,
				TsMs:      now,
			},
			Op:   op,
			TsMs: now,
		},
	}
}

func (e Event) IsZero() bool {
	return e.Payload.Source.Table == "" && e.Payload.TsMs == 0
}

// Publisher receives change events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error {
	return nil
}

// JSONPublisher writes one JSON document per line.
type JSONPublisher struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONPublisher(w io.Writer) *JSONPublisher {
	return &JSONPublisher{enc: json.NewEncoder(w)}
}

func (p *JSONPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(event)
}

// Fanout publishes every event to each of its publishers. All of them are
// tried; the errors are joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ctx context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
