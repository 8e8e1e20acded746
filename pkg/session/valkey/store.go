package sessionvalkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
)

var errNoTTL = errors.New("object already expired")

// store keeps JSON objects under "prefix:type:id" keys.
type store struct {
	valkey valkey.Client
	prefix string
}

func newStore(valkeyClient valkey.Client, prefix string) *store {
	return &store{
		valkey: valkeyClient,
		prefix: strings.TrimSuffix(prefix, ":"),
	}
}

func (s *store) Get(ctx context.Context, objectType, id string, decodeInto any) error {
	return s.get(ctx, s.key(objectType, id), decodeInto)
}

// Set writes val with a time to live, after which valkey drops the key.
func (s *store) Set(ctx context.Context, objectType, id string, val any, ttl time.Duration) error {
	if ttl <= 0 {
		return errNoTTL
	}

	bytes, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}

	cmd := s.valkey.B().Set().Key(s.key(objectType, id)).Value(valkey.BinaryString(bytes)).Ex(ttl).Build()
	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *store) Destroy(ctx context.Context, objectType, id string) error {
	if err := s.valkey.Do(ctx, s.valkey.B().Del().Key(s.key(objectType, id)).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}

func (s *store) get(ctx context.Context, key string, decodeInto any) error {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkeyErr, ok := valkey.IsValkeyErr(err); ok && valkeyErr.IsNil() {
			return errors.Join(valkeyErr, serviceerr.ErrNotFound)
		}

		return fmt.Errorf("executing get command: %w", err)
	}

	if err := json.Unmarshal(bytes, decodeInto); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}

	return nil
}

func (s *store) key(objectType, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, objectType, id)
}

// scan decodes every object of objectType. Keys expiring during the scan
// are skipped.
func scan[T any](ctx context.Context, s *store, objectType string) ([]T, error) {
	match := s.key(objectType, "*")

	var (
		out    []T
		cursor uint64
	)
	for {
		entry, err := s.valkey.Do(ctx, s.valkey.B().Scan().Cursor(cursor).Match(match).Count(100).Build()).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("executing scan command: %w", err)
		}

		out = slices.Grow(out, len(entry.Elements))
		for _, key := range entry.Elements {
			var decoded T
			err := s.get(ctx, key, &decoded)
			if errors.Is(err, serviceerr.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("getting an element: %w", err)
			}

			out = append(out, decoded)
		}

		cursor = entry.Cursor
		if cursor == 0 {
			return out, nil
		}
	}
}
