package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"coinfeed/internal/application/port"
	"coinfeed/internal/domain"
)

var _ port.BatchPublisher = (*Publisher)(nil)

// Writer kafka.Writer 的最小子集，测试里换成假的
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PriceEvent 每个 symbol 一条消息，key = symbol，同一币种落在同一分区
type PriceEvent struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
	Volume    float64 `json:"volume"`
	Ts        int64   `json:"ts"`
}

type Publisher struct {
	w Writer
}

// NewWriter 按 broker 列表创建异步 writer
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
}

func NewPublisher(w Writer) *Publisher {
	return &Publisher{w: w}
}

// PublishBatch 把一次 flush 的批量价格写成一组消息，按 symbol 排序
func (p *Publisher) PublishBatch(ctx context.Context, ts int64, batch map[string]domain.Tick) error {
	if len(batch) == 0 {
		return nil
	}

	syms := make([]string, 0, len(batch))
	for s := range batch {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	msgs := make([]kafka.Message, 0, len(syms))
	for _, s := range syms {
		t := batch[s]
		b, err := json.Marshal(PriceEvent{Symbol: s, Price: t.Price, Change24h: t.Change24h, Volume: t.Volume, Ts: ts})
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(s),
			Value: b,
			Time:  time.UnixMilli(ts),
			Headers: []kafka.Header{
				{Key: "ts_ms", Value: []byte(strconv.FormatInt(ts, 10))},
			},
		})
	}
	return p.w.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	if p.w == nil {
		return errors.New("kafka publisher: nil writer")
	}
	return p.w.Close()
}
