package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTranscriptTTL bounds how long an idle transcript survives.
const DefaultTranscriptTTL = 24 * time.Hour

// RedisStore persists transcripts and summaries in redis with a TTL.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore creates the redis-backed memory store.
func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("memory: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTranscriptTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("dialog-engine.internal.memory")
	}
	return &RedisStore{redis: client, ttl: ttl, tracer: tracer}
}

var _ Store = (*RedisStore)(nil)

func transcriptKey(id string) string {
	return fmt.Sprintf("transcript:%s", id)
}

func summaryKey(id string) string {
	return fmt.Sprintf("summary:%s", id)
}

// AppendTurn pushes one turn onto the transcript list and refreshes the TTL.
func (s *RedisStore) AppendTurn(ctx context.Context, sessionID string, t Turn) error {
	ctx, span := s.tracer.Start(ctx, "memory.append_turn")
	defer span.End()

	data, err := json.Marshal(t)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to marshal turn: %w", err)
	}
	key := transcriptKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to persist turn: %w", err)
	}
	return nil
}

// Turns returns the last n turns, oldest first.
func (s *RedisStore) Turns(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	ctx, span := s.tracer.Start(ctx, "memory.load_turns")
	defer span.End()

	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}
	raw, err := s.redis.LRange(ctx, transcriptKey(sessionID), start, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("memory: failed to load transcript: %w", err)
	}

	out := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("memory: failed to decode turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// SaveSummary overwrites the session summary.
func (s *RedisStore) SaveSummary(ctx context.Context, sessionID string, sum Summary) error {
	ctx, span := s.tracer.Start(ctx, "memory.save_summary")
	defer span.End()

	data, err := json.Marshal(sum)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to marshal summary: %w", err)
	}
	if err := s.redis.Set(ctx, summaryKey(sessionID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to persist summary: %w", err)
	}
	return nil
}

// LoadSummary fetches the summary; unknown sessions yield a zero value.
func (s *RedisStore) LoadSummary(ctx context.Context, sessionID string) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "memory.load_summary")
	defer span.End()

	data, err := s.redis.Get(ctx, summaryKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Summary{}, nil
		}
		span.RecordError(err)
		return Summary{}, fmt.Errorf("memory: failed to load summary: %w", err)
	}

	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("memory: failed to decode summary: %w", err)
	}
	return sum, nil
}

// Clear drops transcript and summary for a session.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "memory.clear")
	defer span.End()

	if err := s.redis.Del(ctx, transcriptKey(sessionID), summaryKey(sessionID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to clear session: %w", err)
	}
	return nil
}
