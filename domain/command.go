package domain

// CommandKind enumerates the inbound commands a session understands.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandFetchMessages
	CommandNewMessage
)

var commandNames = map[string]CommandKind{
	"fetch_messages": CommandFetchMessages,
	"new_message":    CommandNewMessage,
}

func ParseCommandKind(name string) CommandKind {
	return commandNames[name]
}

func (k CommandKind) String() string {
	for name, kind := range commandNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// Command is a parsed inbound frame.
// RoomName is only honoured for moderators; visitors always write to their own room.
type Command struct {
	Kind     CommandKind
	Message  string
	Email    string
	RoomName RoomID
}
