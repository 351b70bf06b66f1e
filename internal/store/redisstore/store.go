package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb        *redis.Client
	profileTTL time.Duration
}

func New(addr, password string, db int, profileTTL time.Duration) *Store {
	if profileTTL <= 0 {
		profileTTL = 5 * time.Minute
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{rdb: rdb, profileTTL: profileTTL}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }

func profileKey(userID string) string { return "profile:" + userID }

// GetProfile returns the cached profile JSON, or redis.Nil when absent.
func (s *Store) GetProfile(ctx context.Context, userID string) (string, error) {
	return s.rdb.Get(ctx, profileKey(userID)).Result()
}

func (s *Store) SetProfile(ctx context.Context, userID, payload string) error {
	return s.rdb.Set(ctx, profileKey(userID), payload, s.profileTTL).Err()
}

func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, profileKey(userID)).Err()
}
