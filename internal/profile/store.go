package profile

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/cortexhq/cortex-server/internal/store/redisstore"
)

// Store loads and saves profiles. Reads go through the redis cache when
// one is configured; a missing profile is a nil result, not an error.
type Store struct {
	db    *gorm.DB
	cache *redisstore.Store
}

func NewStore(db *gorm.DB, cache *redisstore.Store) *Store {
	return &Store{db: db, cache: cache}
}

func (s *Store) Load(ctx context.Context, userID string) (*Profile, error) {
	if s.cache != nil {
		if raw, err := s.cache.GetProfile(ctx, userID); err == nil && raw != "" {
			var p Profile
			if err := json.Unmarshal([]byte(raw), &p); err == nil {
				return &p, nil
			}
			// unreadable cache entry; fall through to the DB
			_ = s.cache.DeleteProfile(ctx, userID)
		}
	}

	var p Profile
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(&p); err == nil {
			_ = s.cache.SetProfile(ctx, userID, string(raw))
		}
	}
	return &p, nil
}

func (s *Store) Upsert(ctx context.Context, p *Profile) error {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.DeleteProfile(ctx, p.ID)
	}
	return nil
}
