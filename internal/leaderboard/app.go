package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/speakuphq/gdhub/internal/models"
)

// Key is the sorted set holding lifetime XP per user.
const Key = "gd:leaderboard:xp"

// SessionXP is the award for finishing a group discussion session.
const SessionXP = 50

// levelThresholds[i] is the XP required to reach level i+1.
var levelThresholds = []int64{0, 100, 250, 500, 1000, 2000, 4000, 8000}

// Entry is one ranked leaderboard row.
type Entry struct {
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
	Level  int    `json:"level"`
	Rank   int    `json:"rank"`
}

// App maintains the XP leaderboard in a Redis sorted set.
type App struct {
	rdb *redis.Client
}

// NewApp creates a new leaderboard App.
func NewApp(rdb *redis.Client) *App {
	return &App{rdb: rdb}
}

// AwardSessionXP credits the standard per-session award.
func (a *App) AwardSessionXP(ctx context.Context, userID string) error {
	return a.AwardXP(ctx, userID, SessionXP)
}

// AwardXP credits xp to a user's lifetime total.
func (a *App) AwardXP(ctx context.Context, userID string, xp int64) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", models.ErrInvalidArgument)
	}
	if err := a.rdb.ZIncrBy(ctx, Key, float64(xp), userID).Err(); err != nil {
		return fmt.Errorf("award xp: %w", err)
	}
	return nil
}

// Top returns the n highest-XP users, best first.
func (a *App) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := a.rdb.ZRevRangeWithScores(ctx, Key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		userID, _ := row.Member.(string)
		xp := int64(row.Score)
		entries = append(entries, Entry{
			UserID: userID,
			XP:     xp,
			Level:  LevelForXP(xp),
			Rank:   i + 1,
		})
	}
	return entries, nil
}

// Rank returns one user's leaderboard entry.
func (a *App) Rank(ctx context.Context, userID string) (Entry, error) {
	if userID == "" {
		return Entry{}, fmt.Errorf("%w: user id is required", models.ErrInvalidArgument)
	}

	rank, err := a.rdb.ZRevRank(ctx, Key, userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, fmt.Errorf("%w: user %s has no xp", models.ErrNotFound, userID)
		}
		return Entry{}, fmt.Errorf("fetch rank: %w", err)
	}

	score, err := a.rdb.ZScore(ctx, Key, userID).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("fetch score: %w", err)
	}

	xp := int64(score)
	return Entry{
		UserID: userID,
		XP:     xp,
		Level:  LevelForXP(xp),
		Rank:   int(rank) + 1,
	}, nil
}

// LevelForXP maps lifetime XP to a level. Beyond the configured thresholds
// each level costs as much as the last step again.
func LevelForXP(xp int64) int {
	level := 1
	for i := 1; i < len(levelThresholds); i++ {
		if xp < levelThresholds[i] {
			return level
		}
		level++
	}

	last := levelThresholds[len(levelThresholds)-1]
	step := last - levelThresholds[len(levelThresholds)-2]
	for xp >= last+step {
		last += step
		level++
	}
	return level
}
