package profile

import (
	"context"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Profile{}))
	return db
}

func TestLoad_MissingProfileIsNilNotError(t *testing.T) {
	s := NewStore(openTestDB(t), nil)

	p, err := s.Load(context.Background(), "00000000-0000-0000-0000-000000000201")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestUpsertThenLoad(t *testing.T) {
	s := NewStore(openTestDB(t), nil)
	uid := "00000000-0000-0000-0000-000000000202"

	nick := "Alex"
	age := 30
	require.NoError(t, s.Upsert(context.Background(), &Profile{ID: uid, Nickname: &nick, Age: &age}))

	p, err := s.Load(context.Background(), uid)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "Alex", *p.Nickname)
	require.Equal(t, 30, *p.Age)
	require.Nil(t, p.Gender)

	// partial update keeps it an upsert, not an insert conflict
	bio := "runner"
	p.Bio = &bio
	require.NoError(t, s.Upsert(context.Background(), p))

	p2, err := s.Load(context.Background(), uid)
	require.NoError(t, err)
	require.Equal(t, "runner", *p2.Bio)
	require.Equal(t, "Alex", *p2.Nickname)
}
