package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakuphq/gdhub/internal/leaderboard"
	"github.com/speakuphq/gdhub/internal/models"
)

type stubQueue struct {
	joinStatus models.QueueStatus
	joinErr    error
	status     models.QueueStatus
	leaveErr   error
	leftUsers  []string
}

func (s *stubQueue) Join(_ context.Context, userID, _ string) (models.QueueStatus, error) {
	return s.joinStatus, s.joinErr
}

func (s *stubQueue) Leave(_ context.Context, userID string) error {
	s.leftUsers = append(s.leftUsers, userID)
	return s.leaveErr
}

func (s *stubQueue) Status(_ context.Context, _ string) (models.QueueStatus, error) {
	return s.status, nil
}

type stubRooms struct {
	room     *models.Room
	err      error
	leftRoom string
}

func (s *stubRooms) GetRoom(_ context.Context, _ string) (*models.Room, error) {
	return s.room, s.err
}

func (s *stubRooms) MarkJoined(_ context.Context, _, _ string) (*models.Room, error) {
	return s.room, s.err
}

func (s *stubRooms) LeaveRoom(_ context.Context, roomID, _ string) error {
	s.leftRoom = roomID
	return s.err
}

func (s *stubRooms) StartCall(_ context.Context, _ string) (*models.Room, error) {
	return s.room, s.err
}

func (s *stubRooms) CompleteRoom(_ context.Context, _ string) (*models.Room, error) {
	return s.room, s.err
}

type stubBoard struct {
	entries []leaderboard.Entry
	err     error
}

func (s *stubBoard) Top(_ context.Context, _ int) ([]leaderboard.Entry, error) {
	return s.entries, s.err
}

func (s *stubBoard) Rank(_ context.Context, _ string) (leaderboard.Entry, error) {
	if s.err != nil {
		return leaderboard.Entry{}, s.err
	}
	return s.entries[0], nil
}

func newTestMux(queue QueueApp, rooms RoomApp, board LeaderboardApp) *http.ServeMux {
	auth := NewAuthenticator([]byte("test-secret"), true)
	handler := NewAPIHandler(queue, rooms, board, auth)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux
}

func doRequest(mux *http.ServeMux, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestJoinReturnsQueueStatus(t *testing.T) {
	queue := &stubQueue{
		joinStatus: models.QueueStatus{Status: models.QueueStateQueued, Position: 2, QueueSize: 2, GroupSize: 3},
	}
	mux := newTestMux(queue, &stubRooms{}, &stubBoard{})

	rec := doRequest(mux, http.MethodPost, "/api/global-gd/join?user_id=alice&name=Alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.QueueStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, models.QueueStateQueued, status.Status)
	assert.Equal(t, 2, status.Position)
	assert.Equal(t, 3, status.GroupSize)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	mux := newTestMux(&stubQueue{}, &stubRooms{}, &stubBoard{})

	rec := doRequest(mux, http.MethodPost, "/api/global-gd/join", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvalidArgumentMapsToBadRequest(t *testing.T) {
	queue := &stubQueue{joinErr: fmt.Errorf("%w: bad input", models.ErrInvalidArgument)}
	mux := newTestMux(queue, &stubRooms{}, &stubBoard{})

	rec := doRequest(mux, http.MethodPost, "/api/global-gd/join?user_id=alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRoomNotFound(t *testing.T) {
	rooms := &stubRooms{err: fmt.Errorf("%w: room missing", models.ErrNotFound)}
	mux := newTestMux(&stubQueue{}, rooms, &stubBoard{})

	rec := doRequest(mux, http.MethodGet, "/api/global-gd/rooms/missing?user_id=alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartCallConflictMapsTo409(t *testing.T) {
	rooms := &stubRooms{err: fmt.Errorf("%w: already active", models.ErrRoomClosed)}
	mux := newTestMux(&stubQueue{}, rooms, &stubBoard{})

	rec := doRequest(mux, http.MethodPost, "/api/global-gd/rooms/r1/start?user_id=alice", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetRoomReturnsRoom(t *testing.T) {
	rooms := &stubRooms{room: &models.Room{
		ID:       "r1",
		Topic:    "Are electric vehicles really sustainable?",
		TeamSize: 3,
		Status:   models.RoomStatusLobby,
	}}
	mux := newTestMux(&stubQueue{}, rooms, &stubBoard{})

	rec := doRequest(mux, http.MethodGet, "/api/global-gd/rooms/r1?user_id=alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rm models.Room
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rm))
	assert.Equal(t, "r1", rm.ID)
	assert.Equal(t, models.RoomStatusLobby, rm.Status)
}

func TestLeaveRoomReadsBody(t *testing.T) {
	rooms := &stubRooms{}
	mux := newTestMux(&stubQueue{}, rooms, &stubBoard{})

	rec := doRequest(mux, http.MethodPost, "/api/global-gd/leave-room?user_id=alice", `{"room_id":"r1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", rooms.leftRoom)
}

func TestLeaderboardTop(t *testing.T) {
	board := &stubBoard{entries: []leaderboard.Entry{
		{UserID: "alice", XP: 150, Level: 2, Rank: 1},
		{UserID: "bob", XP: 50, Level: 1, Rank: 2},
	}}
	mux := newTestMux(&stubQueue{}, &stubRooms{}, board)

	rec := doRequest(mux, http.MethodGet, "/api/leaderboard?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []leaderboard.Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].UserID)
	assert.Equal(t, 1, entries[0].Rank)
}
