package xp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-territory/internal/logger"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// FriendLister returns the ids of a user's accepted friends.
type FriendLister interface {
	AcceptedFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// Leaderboard ranks ledger totals. Pages are cached in redis when a client
// is configured.
type Leaderboard struct {
	ledger  Ledger
	friends FriendLister
	redis   *redis.Client
	ttl     time.Duration
}

func NewLeaderboard(ledger Ledger, friends FriendLister, rdb *redis.Client, ttl time.Duration) *Leaderboard {
	return &Leaderboard{ledger: ledger, friends: friends, redis: rdb, ttl: ttl}
}

// Top returns at most limit ranked entries for w. With scopeUserID set, only
// that user and their accepted friends are ranked.
func (l *Leaderboard) Top(ctx context.Context, w Window, limit int, scopeUserID string) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	key := cacheKey(w, scopeUserID, limit)
	if entries, ok := l.cached(ctx, key); ok {
		return entries, nil
	}

	var userIDs []string
	if scopeUserID != "" {
		userIDs = []string{scopeUserID}
		if l.friends != nil {
			ids, err := l.friends.AcceptedFriendIDs(ctx, scopeUserID)
			if err != nil {
				return nil, fmt.Errorf("load friends: %w", err)
			}
			userIDs = append(userIDs, ids...)
		}
	}

	totals, err := l.ledger.Totals(ctx, w, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load totals: %w", err)
	}
	entries := Rank(totals)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	l.store(ctx, key, entries)
	return entries, nil
}

// cacheKey uses the window start only; the end is "now" on every request and
// the TTL bounds staleness.
func cacheKey(w Window, scope string, limit int) string {
	if scope == "" {
		scope = "global"
	}
	return fmt.Sprintf("leaderboard:%d:%s:%d", w.Start.Unix(), scope, limit)
}

func (l *Leaderboard) cached(ctx context.Context, key string) ([]Entry, bool) {
	if l.redis == nil || l.ttl <= 0 {
		return nil, false
	}
	data, err := l.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Warn("leaderboard cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (l *Leaderboard) store(ctx context.Context, key string, entries []Entry) {
	if l.redis == nil || l.ttl <= 0 {
		return
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := l.redis.Set(ctx, key, data, l.ttl).Err(); err != nil {
		logger.L().Warn("leaderboard cache write failed", "key", key, "error", err)
	}
}
