package leaderboard

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakuphq/gdhub/internal/models"
)

func TestAwardSessionXP(t *testing.T) {
	db, mock := redismock.NewClientMock()
	app := NewApp(db)

	mock.ExpectZIncrBy(Key, float64(SessionXP), "alice").SetVal(float64(SessionXP))

	require.NoError(t, app.AwardSessionXP(context.Background(), "alice"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAwardXPRequiresUserID(t *testing.T) {
	db, _ := redismock.NewClientMock()
	app := NewApp(db)

	err := app.AwardXP(context.Background(), "", 10)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestTopRanksEntries(t *testing.T) {
	db, mock := redismock.NewClientMock()
	app := NewApp(db)

	mock.ExpectZRevRangeWithScores(Key, 0, 1).SetVal([]redis.Z{
		{Member: "alice", Score: 150},
		{Member: "bob", Score: 50},
	})

	entries, err := app.Top(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, Entry{UserID: "alice", XP: 150, Level: 2, Rank: 1}, entries[0])
	assert.Equal(t, Entry{UserID: "bob", XP: 50, Level: 1, Rank: 2}, entries[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopDefaultsLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	app := NewApp(db)

	mock.ExpectZRevRangeWithScores(Key, 0, 9).SetVal(nil)

	entries, err := app.Top(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRank(t *testing.T) {
	db, mock := redismock.NewClientMock()
	app := NewApp(db)

	mock.ExpectZRevRank(Key, "alice").SetVal(0)
	mock.ExpectZScore(Key, "alice").SetVal(250)

	entry, err := app.Rank(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, Entry{UserID: "alice", XP: 250, Level: 3, Rank: 1}, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRankUnknownUser(t *testing.T) {
	db, mock := redismock.NewClientMock()
	app := NewApp(db)

	mock.ExpectZRevRank(Key, "ghost").RedisNil()

	_, err := app.Rank(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLevelForXP(t *testing.T) {
	cases := []struct {
		xp    int64
		level int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{249, 2},
		{250, 3},
		{8000, 8},
		{11999, 8},
		{12000, 9},
		{16000, 10},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, LevelForXP(tc.xp), "xp=%d", tc.xp)
	}
}
