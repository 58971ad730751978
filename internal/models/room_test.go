package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoomStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RoomStatus
		ok       bool
	}{
		{RoomStatusLobby, RoomStatusActive, true},
		{RoomStatusLobby, RoomStatusCompleted, true},
		{RoomStatusActive, RoomStatusCompleted, true},
		{RoomStatusActive, RoomStatusLobby, false},
		{RoomStatusCompleted, RoomStatusLobby, false},
		{RoomStatusCompleted, RoomStatusActive, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRoomStatusClosed(t *testing.T) {
	assert.False(t, RoomStatusLobby.Closed())
	assert.False(t, RoomStatusActive.Closed())
	assert.True(t, RoomStatusCompleted.Closed())
}

func TestJoinedCount(t *testing.T) {
	now := time.Now().UTC()
	room := Room{
		TeamSize: 3,
		Participants: []Participant{
			{UserID: "alice", JoinedAt: &now},
			{UserID: "bob"},
			{UserID: "carol", JoinedAt: &now},
		},
	}
	assert.Equal(t, 2, room.JoinedCount())

	p, ok := room.Participant("bob")
	assert.True(t, ok)
	assert.Nil(t, p.JoinedAt)

	_, ok = room.Participant("mallory")
	assert.False(t, ok)
}
