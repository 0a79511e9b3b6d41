// Package domain contains core concepts of the support chat.
// This file defines Message and FallbackEmail records.
// Both are immutable once created by the relay.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat message stored under a room.
type Message struct {
	ID      uuid.UUID
	Room    RoomID
	Content string
	Sent    time.Time
	// Sender is the username of the author, nil for anonymous visitors.
	Sender *string
}

// FallbackEmail is captured when a visitor writes while no moderator is online.
// Replied is only ever flipped by the back-office.
type FallbackEmail struct {
	ID       uuid.UUID
	Email    string
	Content  string
	Received time.Time
	Replied  bool
}
