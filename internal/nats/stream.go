package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/tixagent/internal/model"
)

const (
	// StreamName is the name of the booking journal stream.
	StreamName = "BOOKINGS"

	// SubjectPrefix is the prefix for all journal subjects.
	SubjectPrefix = "tix"
)

// Publisher is the subset of JetStream the journal needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Journal appends booking events to JetStream.
type Journal struct {
	client *Client
	pub    Publisher
}

// NewJournal creates a journal on an open client.
func NewJournal(client *Client) *Journal {
	return &Journal{client: client, pub: client.JetStream()}
}

// NewJournalWithPublisher creates a journal over an arbitrary publisher.
func NewJournalWithPublisher(pub Publisher) *Journal {
	return &Journal{pub: pub}
}

// EnsureStream creates the journal stream when it does not exist yet.
func (j *Journal) EnsureStream(ctx context.Context) error {
	if j.client == nil {
		return errors.New("journal has no NATS client")
	}
	js := j.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Booking conversation turns and outcomes",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for a journal event.
func EventSubject(sessionID string, eventType model.JournalEventType) string {
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, sessionID, eventType)
}

// SessionFilter returns the filter subject for every event of a session.
func SessionFilter(sessionID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, sessionID)
}

// PublishEvent appends an event to the journal and returns its stream
// sequence. Missing ids and timestamps are filled in.
func (j *Journal) PublishEvent(ctx context.Context, event *model.JournalEvent) (uint64, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := j.pub.Publish(ctx, EventSubject(event.SessionID, event.Type), data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	event.Sequence = ack.Sequence
	return ack.Sequence, nil
}

// History reads up to limit journal events of a session, oldest first.
func (j *Journal) History(ctx context.Context, sessionID string, limit int) ([]model.JournalEvent, error) {
	if j.client == nil {
		return nil, errors.New("journal has no NATS client")
	}

	consumer, err := j.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SessionFilter(sessionID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	var events []model.JournalEvent
	for msg := range batch.Messages() {
		var ev model.JournalEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			ev.Sequence = meta.Sequence.Stream
		}
		events = append(events, ev)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("batch error: %w", err)
	}
	return events, nil
}
