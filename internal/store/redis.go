package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/redis/go-redis/v9"
)

const redisPrefix = "proctor:"

// RedisStore keeps each record as a JSON value, timelines as lists and
// ordering in sorted sets scored by creation time.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(ctx context.Context, addr string, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, unavailable("connect to redis", err)
	}

	return &RedisStore{rdb: rdb}, nil
}

func candidateKey(id string) string {
	return fmt.Sprintf("%scandidate:%s", redisPrefix, id)
}

func candidateSessionsKey(id string) string {
	return fmt.Sprintf("%scandidate:%s:sessions", redisPrefix, id)
}

func sessionKey(id string) string {
	return fmt.Sprintf("%ssession:%s", redisPrefix, id)
}

func violationsKey(id string) string {
	return fmt.Sprintf("%ssession:%s:violations", redisPrefix, id)
}

func logsKey(id string) string {
	return fmt.Sprintf("%ssession:%s:logs", redisPrefix, id)
}

var (
	candidatesIndex = redisPrefix + "candidates"
	sessionsIndex   = redisPrefix + "sessions"
)

func (r *RedisStore) CreateCandidate(ctx context.Context, candidate *models.Candidate) error {
	data, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate: %w", err)
	}

	created, err := r.rdb.SetNX(ctx, candidateKey(candidate.ID), data, 0).Result()
	if err != nil {
		return unavailable("store candidate", err)
	}
	if !created {
		return ErrAlreadyExists
	}

	score := float64(candidate.CreatedAt.UnixNano())
	if err := r.rdb.ZAdd(ctx, candidatesIndex, redis.Z{Score: score, Member: candidate.ID}).Err(); err != nil {
		return unavailable("index candidate", err)
	}

	return nil
}

func (r *RedisStore) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	data, err := r.rdb.Get(ctx, candidateKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable("get candidate", err)
	}

	var candidate models.Candidate
	if err := json.Unmarshal(data, &candidate); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candidate: %w", err)
	}
	return &candidate, nil
}

func (r *RedisStore) ListCandidates(ctx context.Context) ([]*models.Candidate, error) {
	ids, err := r.rdb.ZRange(ctx, candidatesIndex, 0, -1).Result()
	if err != nil {
		return nil, unavailable("list candidates", err)
	}

	candidates := make([]*models.Candidate, 0, len(ids))
	for _, id := range ids {
		candidate, err := r.GetCandidate(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (r *RedisStore) CreateSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(topLevel(session))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	violations, logs, err := marshalTimelines(session.Violations, session.DetectionLogs)
	if err != nil {
		return err
	}

	created, err := r.rdb.SetNX(ctx, sessionKey(session.ID), data, 0).Result()
	if err != nil {
		return unavailable("store session", err)
	}
	if !created {
		return ErrAlreadyExists
	}

	score := float64(session.CreatedAt.UnixNano())
	member := redis.Z{Score: score, Member: session.ID}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, sessionsIndex, member)
		pipe.ZAdd(ctx, candidateSessionsKey(session.CandidateID), member)
		pushTimelines(ctx, pipe, session.ID, violations, logs)
		return nil
	})
	if err != nil {
		return unavailable("index session", err)
	}

	return nil
}

func (r *RedisStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var (
		head       *redis.StringCmd
		violations *redis.StringSliceCmd
		logs       *redis.StringSliceCmd
	)

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		head = pipe.Get(ctx, sessionKey(id))
		violations = pipe.LRange(ctx, violationsKey(id), 0, -1)
		logs = pipe.LRange(ctx, logsKey(id), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("get session", err)
	}

	data, err := head.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable("get session", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	session.Violations = make([]models.Violation, 0, len(violations.Val()))
	for _, raw := range violations.Val() {
		var v models.Violation
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal violation: %w", err)
		}
		session.Violations = append(session.Violations, v)
	}

	session.DetectionLogs = make([]models.DetectionLogEntry, 0, len(logs.Val()))
	for _, raw := range logs.Val() {
		var e models.DetectionLogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal detection log: %w", err)
		}
		session.DetectionLogs = append(session.DetectionLogs, e)
	}

	return &session, nil
}

func (r *RedisStore) ListSessions(ctx context.Context, candidateID string) ([]*models.Session, error) {
	index := sessionsIndex
	if candidateID != "" {
		index = candidateSessionsKey(candidateID)
	}

	ids, err := r.rdb.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, unavailable("list sessions", err)
	}

	sessions := make([]*models.Session, 0, len(ids))
	for _, id := range ids {
		session, err := r.GetSession(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// UpdateSession rewrites the session head under WATCH so a concurrent
// Clear cannot resurrect a deleted session.
func (r *RedisStore) UpdateSession(ctx context.Context, session *models.Session) error {
	key := sessionKey(session.ID)

	data, err := json.Marshal(topLevel(session))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	return r.watchErr("update session", err)
}

func (r *RedisStore) AddViolation(ctx context.Context, sessionID string, violation models.Violation) error {
	data, err := json.Marshal(violation)
	if err != nil {
		return fmt.Errorf("failed to marshal violation: %w", err)
	}
	return r.appendTo(ctx, sessionID, violationsKey(sessionID), data, "add violation")
}

func (r *RedisStore) AddDetectionLog(ctx context.Context, sessionID string, entry models.DetectionLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal detection log: %w", err)
	}
	return r.appendTo(ctx, sessionID, logsKey(sessionID), data, "add detection log")
}

// Commit pushes the timelines and rewrites the head in a single MULTI, under
// the same WATCH as UpdateSession.
func (r *RedisStore) Commit(ctx context.Context, session *models.Session, violations []models.Violation, entries []models.DetectionLogEntry) error {
	key := sessionKey(session.ID)

	head, err := json.Marshal(topLevel(session))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	rawViolations, rawLogs, err := marshalTimelines(violations, entries)
	if err != nil {
		return err
	}

	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pushTimelines(ctx, pipe, session.ID, rawViolations, rawLogs)
			pipe.Set(ctx, key, head, 0)
			return nil
		})
		return err
	}, key)

	return r.watchErr("commit session", err)
}

func marshalTimelines(violations []models.Violation, entries []models.DetectionLogEntry) ([]any, []any, error) {
	rawViolations := make([]any, 0, len(violations))
	for _, v := range violations {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal violation: %w", err)
		}
		rawViolations = append(rawViolations, data)
	}

	rawLogs := make([]any, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal detection log: %w", err)
		}
		rawLogs = append(rawLogs, data)
	}
	return rawViolations, rawLogs, nil
}

func pushTimelines(ctx context.Context, pipe redis.Pipeliner, sessionID string, violations []any, logs []any) {
	if len(violations) > 0 {
		pipe.RPush(ctx, violationsKey(sessionID), violations...)
	}
	if len(logs) > 0 {
		pipe.RPush(ctx, logsKey(sessionID), logs...)
	}
}

func (r *RedisStore) appendTo(ctx context.Context, sessionID string, listKey string, data []byte, op string) error {
	key := sessionKey(sessionID)

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, listKey, data)
			return nil
		})
		return err
	}, key)

	return r.watchErr(op, err)
}

func (r *RedisStore) watchErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	default:
		return unavailable(op, err)
	}
}

// Clear removes every key under the proctor prefix and nothing else.
func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, redisPrefix+"*", 500).Iterator()

	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := r.rdb.Del(ctx, batch...).Err(); err != nil {
				return unavailable("clear", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return unavailable("clear", err)
	}

	if len(batch) > 0 {
		if err := r.rdb.Del(ctx, batch...).Err(); err != nil {
			return unavailable("clear", err)
		}
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
