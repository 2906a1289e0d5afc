// Package events publishes account lifecycle events for downstream
// consumers (welcome mail, analytics, data deletion).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type Type string

const (
	TypeSignupRequested Type = "signup_requested"
	TypeAccountVerified Type = "account_verified"
	TypeGoogleSignIn    Type = "google_sign_in"
	TypePasswordReset   Type = "password_reset"
	TypeAccountDeleted  Type = "account_deleted"
)

// AccountEvent is the JSON payload written to the topic
type AccountEvent struct {
	Type       Type      `json:"type"`
	AccountID  string    `json:"accountId"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher emits account events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event AccountEvent)
	Close()
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	l     *slog.Logger
	w     messageWriter
	topic string
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(l *slog.Logger, brokers []string, topic string) *KafkaPublisher {
	l = l.WithGroup("kafka").With("topic", topic)

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		Async:                  true,
		Logger:                 &infoLogger{l: l},
		ErrorLogger:            &errorLogger{l: l},
		AllowAutoTopicCreation: true,
	}

	return &KafkaPublisher{l: l, w: w, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event AccountEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	b, err := json.Marshal(event)
	if err != nil {
		p.l.Error(fmt.Sprintf("marshal event: %s", err))
		return
	}

	// keyed by account so one account's events stay ordered
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AccountID),
		Value: b,
		Topic: p.topic,
	})
	if err != nil {
		p.l.Error(fmt.Sprintf("write kafka message: %s", err), slog.String("event", string(event.Type)))
	}
}

func (p *KafkaPublisher) Close() {
	if err := p.w.Close(); err != nil {
		p.l.Error(fmt.Sprintf("close kafka writer: %s", err))
	}
}

// NopPublisher drops events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, AccountEvent) {}
func (NopPublisher) Close()                                {}

type infoLogger struct {
	l *slog.Logger
}

func (l *infoLogger) Printf(format string, v ...any) {
	l.l.Debug(fmt.Sprintf(format, v...))
}

type errorLogger struct {
	l *slog.Logger
}

func (l *errorLogger) Printf(format string, v ...any) {
	l.l.Error(fmt.Sprintf(format, v...))
}
