package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoomKeys(t *testing.T) {
	req := require.New(t)
	req.Equal(RoomID("chat_1.2.3.4:51234"), AddressRoom("1.2.3.4:51234"))
	req.Equal(RoomID("chat_42"), CounterRoom(42))
}

func TestParseCommandKind(t *testing.T) {
	req := require.New(t)
	req.Equal(CommandFetchMessages, ParseCommandKind("fetch_messages"))
	req.Equal(CommandNewMessage, ParseCommandKind("new_message"))
	req.Equal(CommandUnknown, ParseCommandKind("delete_messages"))
	req.Equal("new_message", CommandNewMessage.String())
	req.Equal("unknown", CommandUnknown.String())
}

func TestPrincipal_Anonymous(t *testing.T) {
	req := require.New(t)
	var anonymous *Principal

	req.False(anonymous.HasRole(string(RoleModerator)))
	req.Nil(anonymous.SenderName())
	req.Nil((&Principal{UserID: "1"}).SenderName())

	alice := &Principal{Username: "alice", Roles: []string{"moderator"}}
	req.True(alice.HasRole("moderator"))
	req.Equal("alice", *alice.SenderName())
}

func TestDeliveryFrame_Wire_Format(t *testing.T) {
	req := require.New(t)
	sent := time.Date(2026, 3, 4, 5, 6, 7, 800, time.FixedZone("CET", 3600))

	// Given an anonymous message
	frame := DeliveryFrame{
		RoomName: "chat_7",
		Message:  ToChatMessage(Message{Content: "hello", Sent: sent}),
	}

	payload, err := json.Marshal(frame)

	// Then sent is UTC and the sender is an explicit null
	req.NoError(err)
	req.JSONEq(`{"room_name":"chat_7","message":{"content":"hello","sent":"2026-03-04T04:06:07.0000008Z","sender":null}}`, string(payload))

	// And a frame without room omits the key
	frame.RoomName = ""
	payload, err = json.Marshal(frame)
	req.NoError(err)
	req.NotContains(string(payload), "room_name")
}
