// Package event delivers reservation state transitions to downstream
// notification and audit consumers. Delivery is fire-and-forget: a publisher
// never reports failure back to the caller, and a lost event never undoes the
// transition it describes.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeReservationTransitioned = "ReservationTransitioned"
	DefaultProducer             = "cowork-booking-backend"
	envelopeVersion             = 1
)

// Transition is emitted after every successful status change, including the
// initial status assigned at creation (From is empty then).
type Transition struct {
	ReservationID string    `json:"reservation_id"`
	ResourceID    string    `json:"resource_id"`
	From          string    `json:"from_status,omitempty"`
	To            string    `json:"to_status"`
	At            time.Time `json:"at"`
}

// Envelope is the wire form shared by every publisher.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id"` // reservation id
	Payload       json.RawMessage `json:"payload"`
}

// Publisher accepts transitions for asynchronous delivery.
type Publisher interface {
	Publish(ctx context.Context, t Transition)
}

// Encode wraps t in an Envelope and marshals it.
func Encode(producer string, t Transition) ([]byte, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode transition payload: %w", err)
	}
	b, err := json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     TypeReservationTransitioned,
		EventVersion:  envelopeVersion,
		OccurredAt:    t.At,
		Producer:      producer,
		CorrelationID: t.ReservationID,
		Payload:       payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// LogPublisher writes events to the process log. Used when no broker is configured.
type LogPublisher struct {
	Producer string
}

func (p LogPublisher) Publish(_ context.Context, t Transition) {
	b, err := Encode(p.Producer, t)
	if err != nil {
		log.Printf("event: %v", err)
		return
	}
	log.Printf("event: %s", b)
}

// Recorder keeps published transitions in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Transition
}

func (r *Recorder) Publish(_ context.Context, t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.events))
	copy(out, r.events)
	return out
}
