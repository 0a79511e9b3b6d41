//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes, avoiding the need
// for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Endpoint is anything the fanout can deliver a payload to.
type Endpoint interface {
	Handle() string
	Deliver(ctx context.Context, payload []byte) error
}

// Conn is the transport side of a live connection.
type Conn interface {
	RemoteAddr() string
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close(code int, reason string) error
	// Done is closed once the transport can no longer carry frames.
	Done() <-chan struct{}
}

// IPresence records which moderators are online and which rooms exist.
type IPresence interface {
	RegisterModerator(ctx context.Context, handle string) error
	UnregisterModerator(ctx context.Context, handle string) error
	ListModerators(ctx context.Context) ([]string, error)
	ListActiveRooms(ctx context.Context) ([]domain.RoomID, error)
	NextBroadcastRoomID(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// IFanout keeps the subscriber set of every room and delivers to it.
// Attach and Detach only touch the endpoints living in this process.
type IFanout interface {
	Attach(endpoint Endpoint)
	Detach(handle string)
	Join(ctx context.Context, room domain.RoomID, handle string) error
	Leave(ctx context.Context, room domain.RoomID, handle string) error
	Memberships(ctx context.Context, handle string) ([]domain.RoomID, error)
	Members(ctx context.Context, room domain.RoomID) ([]string, error)
	Publish(ctx context.Context, room domain.RoomID, payload []byte) error
}

type IMessageStore interface {
	GetOrCreateRoom(ctx context.Context, key domain.RoomID) (domain.Room, error)
	AppendMessage(ctx context.Context, room domain.Room, content string, sender *string) (domain.Message, error)
	ListMessages(ctx context.Context, key domain.RoomID) ([]domain.Message, error)
	AppendFallbackEmail(ctx context.Context, email, content string) (domain.FallbackEmail, error)
}

type IAuthorizer interface {
	IsModerator(ctx context.Context, principal *domain.Principal) (bool, error)
}

type ICensor interface {
	Censor(original string) string
}
