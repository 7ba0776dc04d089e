package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/diet-digest/backend/internal/dedupe"
)

type stubInvalidator struct {
	ids []string
}

func (s *stubInvalidator) InvalidateArticle(id string) {
	s.ids = append(s.ids, id)
}

type stubReader struct {
	msgs      []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (r *stubReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

type stubWriter struct {
	fail    int
	written []kafka.Message
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.fail > 0 {
		w.fail--
		return errors.New("broker down")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func eventMessage(t *testing.T, offset int64, evt Event) kafka.Message {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	return kafka.Message{Topic: "article-events", Offset: offset, Value: data}
}

func TestProcessInvalidatesOncePerEvent(t *testing.T) {
	target := &stubInvalidator{}
	l := NewListener(nil, nil, target, dedupe.NewCache(100, time.Hour), nil)

	msg := eventMessage(t, 1, Event{EventID: "evt-1", ArticleID: "issue-002", Type: EventUpdated, OccurredAt: "2024-02-01T00:00:00Z"})
	require.NoError(t, l.Process(msg))
	require.NoError(t, l.Process(msg))
	require.Equal(t, []string{"issue-002"}, target.ids)

	// without an event id the offset identifies the delivery
	require.NoError(t, l.Process(eventMessage(t, 2, Event{ArticleID: "issue-001"})))
	require.NoError(t, l.Process(eventMessage(t, 3, Event{ArticleID: "issue-001"})))
	require.Equal(t, []string{"issue-002", "issue-001", "issue-001"}, target.ids)
}

func TestProcessRejectsMalformed(t *testing.T) {
	l := NewListener(nil, nil, &stubInvalidator{}, nil, nil)

	require.ErrorIs(t, l.Process(kafka.Message{Value: []byte("{")}), ErrMalformed)
	require.ErrorIs(t, l.Process(eventMessage(t, 1, Event{EventID: "x"})), ErrMalformed)
	require.ErrorIs(t, l.Process(eventMessage(t, 1, Event{EventID: "y", ArticleID: "a", Type: "article.renamed"})), ErrMalformed)
}

func TestRunCommitsAndDeadLetters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good := eventMessage(t, 1, Event{EventID: "evt-1", ArticleID: "issue-002", Type: EventPublished})
	bad := kafka.Message{Offset: 2, Value: []byte("not json")}
	reader := &stubReader{msgs: []kafka.Message{good, bad}, cancel: cancel}
	dlq := &stubWriter{fail: 1}
	target := &stubInvalidator{}

	l := NewListener(reader, dlq, target, nil, nil)
	l.backoff = time.Millisecond

	require.NoError(t, l.Run(ctx))
	require.Equal(t, []string{"issue-002"}, target.ids)
	require.Len(t, reader.committed, 2)
	require.Len(t, dlq.written, 1)
	require.Equal(t, []byte("not json"), dlq.written[0].Value)

	headers := map[string]string{}
	for _, h := range dlq.written[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "2", headers["original_offset"])
	require.Contains(t, headers["error"], "malformed")
}

func TestRunKeepsMessageWhenDeadLetterFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{msgs: []kafka.Message{{Offset: 5, Value: []byte("{")}}, cancel: cancel}
	l := NewListener(reader, &stubWriter{fail: 10}, &stubInvalidator{}, nil, nil)
	l.backoff = time.Millisecond

	require.NoError(t, l.Run(ctx))
	require.Empty(t, reader.committed)
}
