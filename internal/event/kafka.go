package event

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher buffers transitions and writes them to a topic from a single
// goroutine. Messages are keyed by reservation id so every event for one
// reservation lands on the same partition, in order.
type KafkaPublisher struct {
	w        *kafka.Writer
	producer string
	inbox    chan kafka.Message
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewKafkaPublisher(brokers []string, topic, producer string, buf int) *KafkaPublisher {
	if buf <= 0 {
		buf = 1024
	}
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		producer: producer,
		inbox:    make(chan kafka.Message, buf),
		done:     make(chan struct{}),
	}
}

// Start runs the writer loop until Close is called.
func (p *KafkaPublisher) Start() {
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				log.Printf("event: kafka write for %s failed: %v", m.Key, err)
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			log.Printf("event: kafka writer close: %v", err)
		}
	}()
}

// Publish enqueues t without blocking. When the buffer is full the event is dropped and logged.
func (p *KafkaPublisher) Publish(_ context.Context, t Transition) {
	b, err := Encode(p.producer, t)
	if err != nil {
		log.Printf("event: %v", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(t.ReservationID),
		Value: b,
		Time:  t.At,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		log.Printf("event: publisher closed, dropped %s %s->%s", t.ReservationID, t.From, t.To)
		return
	}
	select {
	case p.inbox <- msg:
	default:
		log.Printf("event: buffer full, dropped %s %s->%s", t.ReservationID, t.From, t.To)
	}
}

// Close flushes buffered messages and waits for the writer to stop.
// Events published after Close are dropped.
func (p *KafkaPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()
	<-p.done
}
