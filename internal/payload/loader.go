// Package payload loads the offloaded heavy fields of an article from an object store.
package payload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DeafMist/diet-digest/backend/internal/mapper"
	"github.com/DeafMist/diet-digest/backend/internal/models"
)

// ErrObjectNotFound is returned by an ObjectGetter when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectGetter fetches raw object bytes.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Reference points at a payload blob: an explicit key, or a URL the key is derived from.
type Reference struct {
	Key string
	URL string
}

// Empty reports whether the reference names nothing.
func (r Reference) Empty() bool {
	return r.Key == "" && r.URL == ""
}

// Loader resolves references against one bucket.
type Loader struct {
	objects ObjectGetter
	bucket  string
	timeout time.Duration
	log     *slog.Logger
}

// NewLoader builds a Loader. A non-positive timeout disables the per-fetch bound.
func NewLoader(objects ObjectGetter, bucket string, timeout time.Duration, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{objects: objects, bucket: bucket, timeout: timeout, log: logger}
}

// Load fetches and decodes the payload. It reports false when the reference is
// empty, the object is missing, or the fetch or decode failed; failures other
// than a missing object are logged at warn level.
func (l *Loader) Load(ctx context.Context, ref Reference) (*models.Payload, bool) {
	if l == nil || l.objects == nil || ref.Empty() {
		return nil, false
	}

	key := ref.Key
	if key == "" {
		derived, err := KeyFromURL(ref.URL, l.bucket)
		if err != nil {
			l.log.Warn("payload reference unusable", slog.String("url", ref.URL), slog.Any("err", err))
			return nil, false
		}
		key = derived
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	data, err := l.objects.GetObject(ctx, l.bucket, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			l.log.Debug("payload object missing", slog.String("key", key))
			return nil, false
		}
		l.log.Warn("fetch payload", slog.String("key", key), slog.Any("err", err))
		return nil, false
	}

	p, err := Decode(data)
	if err != nil {
		l.log.Warn("decode payload", slog.String("key", key), slog.Any("err", err))
		return nil, false
	}
	return p, true
}

// Decode parses a payload blob.
func Decode(data []byte) (*models.Payload, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if raw == nil {
		return nil, errors.New("payload is not an object")
	}
	p := mapper.Payload(raw)
	return &p, nil
}
