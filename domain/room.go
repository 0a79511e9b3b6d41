package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoomID is the fanout key of a conversation, e.g. "chat_1.2.3.4:51234".
type RoomID string

const roomPrefix = "chat_"

// AddressRoom derives the room of a visitor from its connection origin.
// The origin carries the remote port so two visitors behind one NAT address
// never end up in the same room.
func AddressRoom(origin string) RoomID {
	return RoomID(roomPrefix + origin)
}

// CounterRoom is the room drawn from the shared broadcast counter.
func CounterRoom(n int64) RoomID {
	return RoomID(fmt.Sprintf("%s%d", roomPrefix, n))
}

func (r RoomID) String() string { return string(r) }

// Room is the persisted side of a RoomID, created lazily on the first message.
type Room struct {
	ID        uuid.UUID
	Key       RoomID
	CreatedAt time.Time
}
