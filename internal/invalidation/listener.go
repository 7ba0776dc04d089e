// Package invalidation consumes article change events and evicts the affected
// entries from the query cache.
package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/diet-digest/backend/internal/dedupe"
	"github.com/DeafMist/diet-digest/backend/internal/models"
)

// Event types published by the article pipeline.
const (
	EventPublished = "article.published"
	EventUpdated   = "article.updated"
	EventDeleted   = "article.deleted"
)

// ErrMalformed marks messages that can never be applied.
var ErrMalformed = errors.New("malformed article event")

// Event announces a change to one article.
type Event struct {
	EventID    string `json:"event_id"`
	ArticleID  string `json:"article_id"`
	Type       string `json:"type"`
	OccurredAt string `json:"occurred_at"`
}

// Invalidator drops cached reads of an article. querycache.Cache implements it.
type Invalidator interface {
	InvalidateArticle(id string)
}

// MessageReader is the subset of *kafka.Reader used by the listener.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// MessageWriter receives messages that could not be applied. *kafka.Writer implements it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Listener applies article events to an Invalidator.
type Listener struct {
	reader MessageReader
	dlq    MessageWriter
	target Invalidator
	seen   *dedupe.Cache
	log    *slog.Logger

	// backoff is the first delay between dead-letter write attempts.
	backoff time.Duration
}

// NewListener builds a Listener. dlq may be nil, in which case malformed
// messages are logged and committed.
func NewListener(reader MessageReader, dlq MessageWriter, target Invalidator, seen *dedupe.Cache, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if seen == nil {
		seen = dedupe.NewCache(10_000, time.Hour)
	}
	return &Listener{reader: reader, dlq: dlq, target: target, seen: seen, log: logger, backoff: time.Second}
}

// Run fetches and applies events until ctx is canceled.
func (l *Listener) Run(ctx context.Context) error {
	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.log.Info("context canceled, stopping listener")
				return nil
			}
			l.log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := l.Process(msg); err != nil {
			l.log.Warn("skip article event",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if !l.deadLetter(ctx, msg, err) {
				if ctx.Err() != nil {
					return nil
				}
				// leave uncommitted so it is redelivered after a restart
				continue
			}
		}

		if err := l.reader.CommitMessages(ctx, msg); err != nil {
			l.log.Error("commit message", slog.Any("err", err))
		}
	}
}

// Process applies one message. Duplicate event ids are ignored.
func (l *Listener) Process(msg kafka.Message) error {
	var evt Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	id := strings.TrimSpace(evt.ArticleID)
	if id == "" {
		return fmt.Errorf("%w: no article_id", ErrMalformed)
	}
	switch evt.Type {
	case EventPublished, EventUpdated, EventDeleted, "":
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, evt.Type)
	}

	eventID := strings.TrimSpace(evt.EventID)
	if eventID == "" {
		eventID = fmt.Sprintf("%s@%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if l.seen.Observe(eventID) {
		l.log.Debug("duplicate article event", slog.String("event_id", eventID))
		return nil
	}

	l.target.InvalidateArticle(id)

	attrs := []any{slog.String("article_id", id), slog.String("type", evt.Type)}
	if ts, ok := models.ParseDate(evt.OccurredAt); ok {
		attrs = append(attrs, slog.Duration("lag", time.Since(ts)))
	}
	l.log.Info("article invalidated", attrs...)
	return nil
}

// deadLetter forwards msg to the dead-letter writer, retrying with exponential
// backoff. It reports whether msg may be committed.
func (l *Listener) deadLetter(ctx context.Context, msg kafka.Message, cause error) bool {
	if l.dlq == nil {
		return true
	}

	out := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	backoff := l.backoff
	for attempt := range 5 {
		err := l.dlq.WriteMessages(ctx, out)
		if err == nil {
			l.log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}
		l.log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false
		}
		backoff *= 2
	}

	l.log.Error("DLQ write exhausted retries",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}

// NewReader opens a consumer group reader with manual commits.
func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        group,
		MinBytes:       1,
		MaxBytes:       1e6,
		CommitInterval: 0,
	})
}

// NewDeadLetterWriter writes to "<topic>_dlq".
func NewDeadLetterWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:        kafka.TCP(brokers...),
		Topic:       topic + "_dlq",
		MaxAttempts: 3,
	}
}
