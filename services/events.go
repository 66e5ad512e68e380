package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectPlaceCreated = "places.created"
	SubjectPlaceDeleted = "places.deleted"
)

// PlaceEvent is published after a place transaction has committed.
type PlaceEvent struct {
	PlaceID    string    `json:"place_id"`
	CreatorID  string    `json:"creator_id"`
	Title      string    `json:"title"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers post-commit notifications. Delivery is best effort
// and never affects the outcome of the operation that triggered it.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event PlaceEvent) error
}

type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("places-server"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	log.Println("Connected to NATS")
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, subject string, event PlaceEvent) error {
	if p.nc == nil || !p.nc.IsConnected() {
		return nats.ErrConnectionClosed
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.nc.Publish(subject, data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
		}
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, PlaceEvent) error { return nil }
