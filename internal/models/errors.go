package models

import "errors"

var (
	// ErrInvalidArgument indicates a missing or malformed request field.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates an unknown room or participant reference.
	ErrNotFound = errors.New("not found")

	// ErrRoomClosed indicates an operation against a room whose status has
	// already moved past the point where the operation makes sense.
	ErrRoomClosed = errors.New("room closed")
)
