// Package events publishes economy mutations for downstream consumers
// (feeds, analytics). Publishing is best-effort: the core never fails an
// operation because an event could not be delivered.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	UserID  string         `json:"user_id"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

func New(eventType, userID string, payload map[string]any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		UserID:  userID,
		At:      time.Now().UTC(),
		Payload: payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// NATSPublisher pushes events to "<prefix>.<type>" subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

func ConnectNATS(url, subjectPrefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	if subjectPrefix == "" {
		subjectPrefix = "economy"
	}
	return &NATSPublisher{conn: nc, prefix: subjectPrefix}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.prefix+"."+ev.Type, data)
}

func (p *NATSPublisher) Close() {
	p.conn.Drain()
}
