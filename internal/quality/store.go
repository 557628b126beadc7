package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eleven-am/tutor-backend/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultStateTTL = 5 * time.Minute

	stateKeyPrefix   = "quality:state:"
	sessionKeyPrefix = "quality:session:"
	maxMergeAttempts = 8
)

var ErrMergeConflict = errors.New("participant state changed concurrently")

// StateStore keeps one JSON document per (session, participant) plus a set of
// participant ids per session for teardown. Both carry the same TTL and are
// refreshed on every merge.
type StateStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStateStore(redisClient *redis.Client, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{redis: redisClient, ttl: ttl}
}

func stateKey(sessionID, participantID string) string {
	return stateKeyPrefix + sessionID + ":" + participantID
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// Merge applies update over the stored state inside a WATCH transaction so
// concurrent writers for the same participant cannot lose each other's fields.
func (s *StateStore) Merge(ctx context.Context, sessionID, participantID string, update ParticipantState, now time.Time) (*ParticipantState, error) {
	key := stateKey(sessionID, participantID)
	var merged ParticipantState

	txf := func(tx *redis.Tx) error {
		merged = ParticipantState{}
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &merged); err != nil {
				return fmt.Errorf("decode participant state: %w", err)
			}
		}

		merged.Merge(update)
		merged.UpdatedAt = now.UTC()

		encoded, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode participant state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			pipe.SAdd(ctx, sessionKey(sessionID), participantID)
			pipe.Expire(ctx, sessionKey(sessionID), s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return &merged, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("merge participant state: %w", err)
	}
	return nil, ErrMergeConflict
}

func (s *StateStore) Get(ctx context.Context, sessionID, participantID string) (*ParticipantState, error) {
	data, err := s.redis.Get(ctx, stateKey(sessionID, participantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get participant state: %w", err)
	}

	var state ParticipantState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode participant state: %w", err)
	}
	return &state, nil
}

func (s *StateStore) Delete(ctx context.Context, sessionID, participantID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, stateKey(sessionID, participantID))
		pipe.SRem(ctx, sessionKey(sessionID), participantID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete participant state: %w", err)
	}
	return nil
}

// DeleteSession removes every participant state of the session and returns
// the participant ids that were tracked.
func (s *StateStore) DeleteSession(ctx context.Context, sessionID string) ([]string, error) {
	participants, err := s.redis.SMembers(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list session participants: %w", err)
	}

	keys := make([]string, 0, len(participants)+1)
	for _, p := range participants {
		keys = append(keys, stateKey(sessionID, p))
	}
	keys = append(keys, sessionKey(sessionID))

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return nil, fmt.Errorf("delete session state: %w", err)
	}
	return participants, nil
}
