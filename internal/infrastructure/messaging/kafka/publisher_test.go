package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"coinfeed/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w)

	batch := map[string]domain.Tick{
		"ETH": {Symbol: "ETH", Price: 3000, Change24h: -1, Volume: 5},
		"BTC": {Symbol: "BTC", Price: 50000, Change24h: 2.5, Volume: 10},
	}
	if err := p.PublishBatch(context.Background(), 1700000000000, batch); err != nil {
		t.Fatalf("PublishBatch failed: %v", err)
	}

	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "BTC" || string(w.msgs[1].Key) != "ETH" {
		t.Errorf("messages must be keyed by symbol in order, got %s %s", w.msgs[0].Key, w.msgs[1].Key)
	}

	var ev PriceEvent
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if ev.Price != 50000 || ev.Ts != 1700000000000 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestPublishEmptyBatch(t *testing.T) {
	w := &fakeWriter{err: errors.New("should not be called")}
	if err := NewPublisher(w).PublishBatch(context.Background(), 1, nil); err != nil {
		t.Errorf("empty batch must be a no-op, got %v", err)
	}
}

func TestPublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(w)
	if err := p.PublishBatch(context.Background(), 1, map[string]domain.Tick{"BTC": {Price: 1}}); err == nil {
		t.Error("expected writer error")
	}
	p.Close()
	if !w.closed {
		t.Error("Close must close the writer")
	}
}

func TestNewWriter(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "prices")
	if w.Topic != "prices" {
		t.Errorf("unexpected topic %s", w.Topic)
	}
}
