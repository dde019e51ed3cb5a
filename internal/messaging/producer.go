package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer publishes lifecycle events fire-and-forget. Delivery is best
// effort: reservation and payment state lives in the store, the stream only
// notifies downstream consumers.
type Producer struct {
	w         *kafka.Writer
	inbox     chan kafka.Message
	closeCh   chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

func NewProducer(brokers []string, topic string, buf int, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log,
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.flush()
				return
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) Publish(evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		p.log.Error("marshal event", "type", evt.Type, "err", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(evt.ReservationID),
		Value: body,
		Time:  time.Now(),
	}
	select {
	case p.inbox <- msg:
	default:
		p.log.Warn("event inbox full, dropping", "type", evt.Type, "reservation_id", evt.ReservationID)
	}
}

// Close stops intake and waits for the drain loop to finish. Safe to call
// after the Start context is already cancelled.
func (p *Producer) Close() {
	p.closeOnce.Do(func() { close(p.inbox) })
	<-p.closeCh
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Error("publish event", "err", err)
	}
}

func (p *Producer) flush() {
	p.closeOnce.Do(func() { close(p.inbox) })
	for m := range p.inbox {
		p.write(m)
	}
	_ = p.w.Close()
}
