package matchqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakuphq/gdhub/internal/models"
	"github.com/speakuphq/gdhub/internal/room"
)

type fakeQueueRepo struct {
	mu      sync.Mutex
	entries map[string]models.QueueEntry
	inserts int
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{entries: make(map[string]models.QueueEntry)}
}

func (f *fakeQueueRepo) InsertEntry(_ context.Context, entry models.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[entry.UserID]; !ok {
		f.entries[entry.UserID] = entry
		f.inserts++
	}
	return nil
}

func (f *fakeQueueRepo) DeleteEntry(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, userID)
	return nil
}

func (f *fakeQueueRepo) ListEntries(_ context.Context) ([]models.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.QueueEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

type fakeRooms struct {
	mu      sync.Mutex
	active  map[string]*models.Room
	created []room.CreateFromQueueRequest
	err     error
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{active: make(map[string]*models.Room)}
}

func (f *fakeRooms) CreateFromQueue(_ context.Context, req room.CreateFromQueueRequest) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	rm := &models.Room{
		ID:       fmt.Sprintf("room-%d", len(f.created)+1),
		Topic:    req.Topic,
		TeamSize: req.TeamSize,
		Status:   models.RoomStatusLobby,
	}
	for _, m := range req.Members {
		rm.Participants = append(rm.Participants, models.Participant{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
		})
		f.active[m.UserID] = rm
	}
	f.created = append(f.created, req)
	return rm, nil
}

func (f *fakeRooms) ActiveRoomFor(_ context.Context, userID string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[userID], nil
}

type fakeTimeoutOutbox struct {
	mu       sync.Mutex
	timeouts []string
}

func (f *fakeTimeoutOutbox) InsertQueueTimeout(_ context.Context, userID string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, userID)
	return nil
}

func newTestApp(t *testing.T) (*App, *fakeQueueRepo, *fakeRooms, *fakeTimeoutOutbox, *clockwork.FakeClock) {
	t.Helper()
	repo := newFakeQueueRepo()
	rooms := newFakeRooms()
	outbox := &fakeTimeoutOutbox{}
	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	app := NewApp(cfg, repo, rooms, outbox, clock)
	return app, repo, rooms, outbox, clock
}

func TestJoinQueuesUntilTeamSize(t *testing.T) {
	app, _, rooms, _, _ := newTestApp(t)
	ctx := context.Background()

	statusA, err := app.Join(ctx, "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateQueued, statusA.Status)
	assert.Equal(t, 1, statusA.Position)
	assert.Equal(t, 1, statusA.QueueSize)

	statusB, err := app.Join(ctx, "bob", "Bob")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateQueued, statusB.Status)
	assert.Equal(t, 2, statusB.Position)

	statusC, err := app.Join(ctx, "carol", "Carol")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateMatched, statusC.Status)
	assert.NotEmpty(t, statusC.RoomID)
	assert.Len(t, statusC.Participants, 3)

	require.Len(t, rooms.created, 1)
	members := rooms.created[0].Members
	assert.Equal(t, "alice", members[0].UserID)
	assert.Equal(t, "bob", members[1].UserID)
	assert.Equal(t, "carol", members[2].UserID)

	// the pool drained, so earlier members now see their room
	statusA, err = app.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateMatched, statusA.Status)
	assert.Equal(t, statusC.RoomID, statusA.RoomID)
}

func TestJoinIsIdempotentWhileQueued(t *testing.T) {
	app, repo, _, _, _ := newTestApp(t)
	ctx := context.Background()

	_, err := app.Join(ctx, "alice", "Alice")
	require.NoError(t, err)

	status, err := app.Join(ctx, "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateQueued, status.Status)
	assert.Equal(t, 1, status.Position)
	assert.Equal(t, 1, status.QueueSize)
	assert.Equal(t, 1, repo.inserts)
}

func TestJoinReturnsExistingRoom(t *testing.T) {
	app, repo, rooms, _, _ := newTestApp(t)
	ctx := context.Background()

	rm := &models.Room{
		ID:       "existing",
		TeamSize: 3,
		Status:   models.RoomStatusLobby,
		Participants: []models.Participant{
			{UserID: "alice", DisplayName: "Alice"},
		},
	}
	rooms.active["alice"] = rm

	status, err := app.Join(ctx, "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateMatched, status.Status)
	assert.Equal(t, "existing", status.RoomID)
	assert.Zero(t, repo.inserts)
}

func TestJoinRejectsEmptyUserID(t *testing.T) {
	app, _, _, _, _ := newTestApp(t)

	_, err := app.Join(context.Background(), "", "Nobody")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestLeaveRemovesFromPool(t *testing.T) {
	app, repo, rooms, _, _ := newTestApp(t)
	ctx := context.Background()

	_, err := app.Join(ctx, "alice", "Alice")
	require.NoError(t, err)
	_, err = app.Join(ctx, "bob", "Bob")
	require.NoError(t, err)

	require.NoError(t, app.Leave(ctx, "alice"))
	_, ok := repo.entries["alice"]
	assert.False(t, ok)

	// alice is gone, so a third join only makes two
	status, err := app.Join(ctx, "carol", "Carol")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateQueued, status.Status)
	assert.Empty(t, rooms.created)

	status, err = app.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateIdle, status.Status)
}

func TestLeaveUnknownUserIsNoop(t *testing.T) {
	app, _, _, _, _ := newTestApp(t)
	assert.NoError(t, app.Leave(context.Background(), "ghost"))
}

func TestFormationFailureKeepsMembersQueued(t *testing.T) {
	app, _, rooms, _, _ := newTestApp(t)
	ctx := context.Background()

	rooms.err = errors.New("db down")

	_, err := app.Join(ctx, "alice", "Alice")
	require.NoError(t, err)
	_, err = app.Join(ctx, "bob", "Bob")
	require.NoError(t, err)
	status, err := app.Join(ctx, "carol", "Carol")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateQueued, status.Status)
	assert.Equal(t, 3, status.QueueSize)

	// formation recovers, the fourth join matches the three oldest
	rooms.err = nil
	status, err = app.Join(ctx, "dave", "Dave")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateQueued, status.Status)
	assert.Equal(t, 1, status.Position)

	require.Len(t, rooms.created, 1)
	members := rooms.created[0].Members
	assert.Equal(t, "alice", members[0].UserID)
	assert.Equal(t, "carol", members[2].UserID)
}

func TestSweepExpiresStaleEntries(t *testing.T) {
	app, repo, _, outbox, clock := newTestApp(t)
	ctx := context.Background()

	_, err := app.Join(ctx, "alice", "Alice")
	require.NoError(t, err)

	clock.Advance(app.cfg.MaxWait + time.Second)
	app.sweep(ctx)

	_, ok := repo.entries["alice"]
	assert.False(t, ok)
	assert.Equal(t, []string{"alice"}, outbox.timeouts)

	// the timeout notice is consumed by the first status read
	status, err := app.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateTimedOut, status.Status)

	status, err = app.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateIdle, status.Status)
}

func TestSweepKeepsFreshEntriesAndRetriesFormation(t *testing.T) {
	app, _, rooms, outbox, clock := newTestApp(t)
	ctx := context.Background()

	rooms.err = errors.New("db down")
	for _, u := range []string{"alice", "bob", "carol"} {
		_, err := app.Join(ctx, u, u)
		require.NoError(t, err)
	}
	rooms.err = nil

	clock.Advance(app.cfg.SweepInterval)
	app.sweep(ctx)

	require.Len(t, rooms.created, 1)
	assert.Empty(t, outbox.timeouts)
}

func TestRejoinAfterTimeoutClearsNotice(t *testing.T) {
	app, _, _, _, clock := newTestApp(t)
	ctx := context.Background()

	_, err := app.Join(ctx, "alice", "Alice")
	require.NoError(t, err)
	clock.Advance(app.cfg.MaxWait + time.Second)
	app.sweep(ctx)

	status, err := app.Join(ctx, "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateQueued, status.Status)

	require.NoError(t, app.Leave(ctx, "alice"))
	status, err = app.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStateIdle, status.Status)
}

func TestLoadRestoresOldestFirst(t *testing.T) {
	repo := newFakeQueueRepo()
	rooms := newFakeRooms()
	clock := clockwork.NewFakeClock()
	base := clock.Now().UTC()

	repo.entries["bob"] = models.QueueEntry{UserID: "bob", JoinedAt: base.Add(time.Minute), GroupSizeTarget: 3}
	repo.entries["alice"] = models.QueueEntry{UserID: "alice", JoinedAt: base, GroupSizeTarget: 3}

	app := NewApp(DefaultConfig(), repo, rooms, &fakeTimeoutOutbox{}, clock)
	require.NoError(t, app.Load(context.Background()))

	status, err := app.Status(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, status.Position)
	status, err = app.Status(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, status.Position)
}

func TestConcurrentJoinsNeverDoubleGroup(t *testing.T) {
	app, _, rooms, _, _ := newTestApp(t)
	ctx := context.Background()

	const users = 30
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := app.Join(ctx, fmt.Sprintf("user-%02d", i), "User")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, rooms.created, users/3)
	seen := make(map[string]bool)
	for _, req := range rooms.created {
		require.Len(t, req.Members, 3)
		for _, m := range req.Members {
			assert.False(t, seen[m.UserID], "user %s grouped twice", m.UserID)
			seen[m.UserID] = true
		}
	}
}
