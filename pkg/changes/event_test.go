package changes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewJSONPublisher(&buf)

	ev := NewEvent(OpCreate, "sqlite", "items", 1, nil, map[string]any{"id": 1, "name": "bolt"})
	require.NoError(t, p.Publish(context.Background(), ev))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	payload := decoded["payload"].(map[string]any)
	assert.Equal(t, "c", payload["op"])
	assert.Nil(t, payload["before"])
	assert.Equal(t, "bolt", payload["after"].(map[string]any)["name"])
	assert.Equal(t, "items", payload["source"].(map[string]any)["table"])
}

func TestRecorder(t *testing.T) {
	var r Recorder
	assert.True(t, Event{}.IsZero())

	ev := NewEvent(OpDelete, "memory", "items", 3, map[string]any{"id": 3}, nil)
	assert.False(t, ev.IsZero())
	require.NoError(t, r.Publish(context.Background(), ev))

	events := r.Events()
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Key)

	events[0].Key = 9
	assert.Equal(t, int64(3), r.Events()[0].Key)
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, event Event) error {
	return errors.New("broker down")
}

func TestFanout(t *testing.T) {
	var a, b Recorder
	ev := NewEvent(OpDelete, "memory", "items", 3, map[string]any{"id": 3}, nil)

	require.NoError(t, Fanout{&a, &b}.Publish(context.Background(), ev))
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)

	err := Fanout{failingPublisher{}, &a}.Publish(context.Background(), ev)
	assert.EqualError(t, err, "broker down")
	assert.Len(t, a.Events(), 2)
}
