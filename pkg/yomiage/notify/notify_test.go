package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSSinkPublishesEvents(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "drill.progress")
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sink.now = func() time.Time { return fixed }

	ctx := WithBatchID(context.Background(), "batch-1")
	require.NoError(t, sink.Progress(ctx, "生成中... 0/2"))
	require.NoError(t, sink.Finish(ctx, "生成完了"))

	require.Len(t, pub.payloads, 2)
	assert.Equal(t, []string{"drill.progress", "drill.progress"}, pub.subjects)

	var ev Event
	require.NoError(t, json.Unmarshal(pub.payloads[1], &ev))
	assert.Equal(t, Event{BatchID: "batch-1", Event: EventFinish, Message: "生成完了", Timestamp: fixed}, ev)
}

func TestNATSSinkPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("disconnected")}
	err := NewNATSSink(pub, "s").Progress(context.Background(), "x")
	assert.ErrorIs(t, err, pub.err)
}

type failingSink struct{}

func (failingSink) Progress(context.Context, string) error { return errors.New("progress failed") }
func (failingSink) Finish(context.Context, string) error   { return errors.New("finish failed") }

func TestMultiDeliversToEverySink(t *testing.T) {
	rec := &Recorder{}
	m := Multi{failingSink{}, rec, NewLogSink(nil)}

	assert.Error(t, m.Progress(context.Background(), "a"))
	assert.Error(t, m.Finish(context.Background(), "b"))

	assert.Equal(t, []string{"a"}, rec.Messages(EventProgress))
	assert.Equal(t, []string{"b"}, rec.Messages(EventFinish))
}

func TestCancelHandler(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		current string
		want    bool
	}{
		{"empty payload cancels current", "", "b1", true},
		{"matching batch", `{"batch_id":"b1"}`, "b1", true},
		{"no batch id", `{}`, "b1", true},
		{"other batch", `{"batch_id":"b2"}`, "b1", false},
		{"broken json", `{`, "b1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cancelled := false
			h := CancelHandler{
				Current: func() string { return tt.current },
				Cancel:  func() { cancelled = true },
			}
			h.HandleMsg(&nats.Msg{Data: []byte(tt.data)})
			assert.Equal(t, tt.want, cancelled)
		})
	}
}

func TestConnectRequiresServers(t *testing.T) {
	_, err := Connect(context.Background(), BusConfig{}, nil)
	assert.Error(t, err)
}
