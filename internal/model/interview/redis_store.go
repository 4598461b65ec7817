package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "interview:session"

// appendTurnScript pushes a turn only while the session header still exists,
// so a concurrent Delete cannot leave an orphaned transcript behind.
var appendTurnScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)

// RedisStore keeps sessions in Redis so several replicas can serve the same
// interview. Keys carry no TTL.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix uses the default.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) headerKey(id string) string     { return s.prefix + ":" + id }
func (s *RedisStore) transcriptKey(id string) string { return s.prefix + ":" + id + ":transcript" }

func (s *RedisStore) Create(ctx context.Context, session Session) error {
	turns := make([]any, 0, len(session.Transcript))
	for _, turn := range session.Transcript {
		raw, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("encode turn: %w", err)
		}
		turns = append(turns, raw)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.transcriptKey(session.ID))
		pipe.HSet(ctx, s.headerKey(session.ID), map[string]any{
			"resume_text":     session.ResumeText,
			"job_description": session.JobDescription,
			"created_at":      session.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if len(turns) > 0 {
			pipe.RPush(ctx, s.transcriptKey(session.ID), turns...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis create session %s: %w", session.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	var (
		header *redis.MapStringStringCmd
		turns  *redis.StringSliceCmd
	)
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		header = pipe.HGetAll(ctx, s.headerKey(id))
		turns = pipe.LRange(ctx, s.transcriptKey(id), 0, -1)
		return nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("redis get session %s: %w", id, err)
	}

	fields := header.Val()
	if len(fields) == 0 {
		return Session{}, ErrSessionNotFound
	}

	session := Session{
		ID:             id,
		ResumeText:     fields["resume_text"],
		JobDescription: fields["job_description"],
		Transcript:     make([]Turn, 0, len(turns.Val())),
	}
	if createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		session.CreatedAt = createdAt
	}

	for _, raw := range turns.Val() {
		var turn Turn
		if err := json.Unmarshal([]byte(raw), &turn); err != nil {
			return Session{}, fmt.Errorf("decode turn for session %s: %w", id, err)
		}
		session.Transcript = append(session.Transcript, turn)
	}
	return session, nil
}

func (s *RedisStore) AppendTurn(ctx context.Context, id string, turn Turn) error {
	raw, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}

	appended, err := appendTurnScript.Run(ctx, s.rdb, []string{s.headerKey(id), s.transcriptKey(id)}, raw).Int()
	if err != nil {
		return fmt.Errorf("redis append turn %s: %w", id, err)
	}
	if appended == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.headerKey(id), s.transcriptKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session %s: %w", id, err)
	}
	return nil
}
