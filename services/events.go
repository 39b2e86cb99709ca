package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Subjects for domain events consumed by the notification service.
const (
	SubjectFollowRequested = "social.follow.requested"
	SubjectFollowAccepted  = "social.follow.accepted"
	SubjectFollowRejected  = "social.follow.rejected"
	SubjectUnfollowed      = "social.follow.removed"
	SubjectBadgeLiked      = "badge.liked"
	SubjectBadgeCommented  = "badge.commented"
)

type Event struct {
	Subject  string    `json:"subject"`
	ActorID  string    `json:"actor_id"`
	TargetID string    `json:"target_id"`
	BadgeID  string    `json:"badge_id,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers events after a mutation has committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.conn.Publish(e.Subject, data)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// RecordingPublisher keeps every event in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *RecordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *RecordingPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// publish never fails the caller: the mutation has already been applied.
func publish(ctx context.Context, pub Publisher, log logrus.FieldLogger, e Event) {
	if err := pub.Publish(ctx, e); err != nil {
		log.WithError(err).WithField("subject", e.Subject).Warn("Failed to publish event")
	}
}
