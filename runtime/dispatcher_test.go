package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatcher_Parse(t *testing.T) {
	dispatcher := NewDispatcher(slog.Default(), nil, 10, time.Second)

	tests := []struct {
		name    string
		frame   string
		want    domain.Command
		wantErr error
	}{
		{
			name:  "new message",
			frame: `{"command":"new_message","message":"hello","email":"v@example.com"}`,
			want:  domain.Command{Kind: domain.CommandNewMessage, Message: "hello", Email: "v@example.com"},
		},
		{
			name:  "fetch messages with room",
			frame: `{"command":"fetch_messages","room_name":"chat_a"}`,
			want:  domain.Command{Kind: domain.CommandFetchMessages, RoomName: "chat_a"},
		},
		{name: "not json", frame: `hello`, wantErr: errors.ErrMalformedFrame},
		{name: "json but not an object", frame: `["new_message"]`, wantErr: errors.ErrMalformedFrame},
		{name: "unknown command", frame: `{"command":"delete_room"}`, wantErr: errors.ErrUnknownCommand},
		{name: "missing command", frame: `{"message":"hello"}`, wantErr: errors.ErrUnknownCommand},
		{name: "empty message", frame: `{"command":"new_message"}`, wantErr: errors.ErrMalformedFrame},
		{
			name:    "message too long",
			frame:   `{"command":"new_message","message":"` + strings.Repeat("a", 11) + `"}`,
			wantErr: errors.ErrMalformedFrame,
		},
		{name: "wrong field type", frame: `{"command":"new_message","message":42}`, wantErr: errors.ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			cmd, err := dispatcher.Parse([]byte(tt.frame))
			if tt.wantErr != nil {
				req.ErrorIs(err, tt.wantErr)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, cmd)
		})
	}
}

func TestCommandKind_String(t *testing.T) {
	req := require.New(t)
	req.Equal("new_message", domain.CommandNewMessage.String())
	req.Equal("fetch_messages", domain.CommandFetchMessages.String())
	req.Equal("unknown", domain.CommandUnknown.String())
}
