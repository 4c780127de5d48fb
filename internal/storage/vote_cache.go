package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"queryforum/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// loadedField marks a cached hash as complete so that a user with no votes
// is still a cache hit.
const loadedField = "_loaded"

// versionTTL outlives any cache fill in flight.
const versionTTL = 24 * time.Hour

// errStaleFill aborts a cache fill whose snapshot predates a refresh.
var errStaleFill = errors.New("vote cache fill is stale")

func userVotesKey(userID string) string {
	return fmt.Sprintf("votes:user:%s", userID)
}

// userVotesVersionKey is bumped by every refresh. A fill only lands when
// the version it read before loading is still current.
func userVotesVersionKey(userID string) string {
	return fmt.Sprintf("votes:ver:%s", userID)
}

// GetUserVotes returns the user's votes keyed by complaint ID, served from
// Redis when cached.
func (s *Service) GetUserVotes(ctx context.Context, userID string) (map[string]models.VoteType, error) {
	if votes, ok := s.cachedUserVotes(ctx, userID); ok {
		return votes, nil
	}
	version, versioned := s.userVotesVersion(ctx, userID)
	votes, err := s.loadUserVotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	if versioned {
		s.cacheUserVotes(ctx, userID, votes, version)
	}
	return votes, nil
}

// RefreshUserVotes bumps the user's cache version, drops the cached vote
// state, re-reads it from the database and caches the result. Fills that
// started before the bump can no longer overwrite it.
func (s *Service) RefreshUserVotes(ctx context.Context, userID string) (map[string]models.VoteType, error) {
	version, versioned := s.bumpUserVotesVersion(ctx, userID)
	votes, err := s.loadUserVotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	if versioned {
		s.cacheUserVotes(ctx, userID, votes, version)
	}
	return votes, nil
}

func (s *Service) cachedUserVotes(ctx context.Context, userID string) (map[string]models.VoteType, bool) {
	if s.Redis == nil {
		return nil, false
	}
	fields, err := s.Redis.HGetAll(ctx, userVotesKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.Logger.Warn("vote cache read failed", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	if _, ok := fields[loadedField]; !ok {
		return nil, false
	}
	votes := make(map[string]models.VoteType, len(fields)-1)
	for complaintID, value := range fields {
		if complaintID == loadedField {
			continue
		}
		votes[complaintID] = models.VoteType(value)
	}
	return votes, true
}

// userVotesVersion reads the current version; a missing key is version 0.
// It reports false when Redis is unavailable, in which case nothing should
// be cached.
func (s *Service) userVotesVersion(ctx context.Context, userID string) (int64, bool) {
	if s.Redis == nil {
		return 0, false
	}
	version, err := s.Redis.Get(ctx, userVotesVersionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		s.Logger.Warn("vote cache version read failed", zap.String("user_id", userID), zap.Error(err))
		return 0, false
	}
	return version, true
}

// bumpUserVotesVersion increments the version and drops the cached hash in
// one transaction.
func (s *Service) bumpUserVotesVersion(ctx context.Context, userID string) (int64, bool) {
	if s.Redis == nil {
		return 0, false
	}
	verKey := userVotesVersionKey(userID)
	var incr *redis.IntCmd
	_, err := s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, verKey)
		pipe.Expire(ctx, verKey, versionTTL)
		pipe.Del(ctx, userVotesKey(userID))
		return nil
	})
	if err != nil {
		s.Logger.Warn("vote cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
		return 0, false
	}
	return incr.Val(), true
}

// cacheUserVotes writes votes only while the version is still version.
func (s *Service) cacheUserVotes(ctx context.Context, userID string, votes map[string]models.VoteType, version int64) {
	key := userVotesKey(userID)
	verKey := userVotesVersionKey(userID)
	values := make(map[string]any, len(votes)+1)
	values[loadedField] = "1"
	for complaintID, voteType := range votes {
		values[complaintID] = string(voteType)
	}

	err := s.Redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, values)
			pipe.Expire(ctx, key, s.VoteCacheTTL)
			return nil
		})
		return err
	}, verKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		s.Logger.Debug("skipped stale vote cache fill", zap.String("user_id", userID))
	default:
		s.Logger.Warn("vote cache write failed", zap.String("user_id", userID), zap.Error(err))
		if err := s.Redis.Del(ctx, key).Err(); err != nil {
			s.Logger.Warn("vote cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
