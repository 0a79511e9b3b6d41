package storage

import (
	"chat-relay/domain"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	roomPrefix     = "room:"
	messagePrefix  = "msg:"
	fallbackPrefix = "fallback:"
	// 19 digits keep nanosecond timestamps in lexicographical order.
	maxTimestamp       = "9999999999999999999"
	maxConflictRetries = 3
)

var errStoreClosed = stderrors.New("badger store closed")

// MessageRepository is the badger backed message store of the relay.
// It implements contract.IMessageStore.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type roomRecord struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

type messageRecord struct {
	ID      uuid.UUID `json:"id"`
	Room    string    `json:"room"`
	Content string    `json:"content"`
	Sent    time.Time `json:"sent"`
	Sender  *string   `json:"sender,omitempty"`
}

type fallbackRecord struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Content  string    `json:"content"`
	Received time.Time `json:"received"`
	Replied  bool      `json:"replied"`
}

// GetOrCreateRoom returns the room stored under key, creating it on first use.
// Read and write happen in one transaction so concurrent callers agree on the ID.
func (m *MessageRepository) GetOrCreateRoom(ctx context.Context, key domain.RoomID) (domain.Room, error) {
	if err := m.ready(ctx); err != nil {
		return domain.Room{}, err
	}
	var record roomRecord
	var err error
	// Two first messages racing on a new room conflict: the loser retries and reads the winner's room.
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = m.db.Update(func(txn *badger.Txn) error {
			found, err := getJSON(txn, roomKey(key), &record)
			if err != nil || found {
				return err
			}
			record = roomRecord{ID: uuid.New(), Key: string(key), CreatedAt: time.Now().UTC()}
			return setJSON(txn, roomKey(key), record)
		})
		if !stderrors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return domain.Room{}, err
	}
	return domain.Room{ID: record.ID, Key: domain.RoomID(record.Key), CreatedAt: record.CreatedAt}, nil
}

// AppendMessage stores content under room.
// The key is "msg:{room_uuid}:{timestamp_padded}:{uuid}": the padded timestamp
// sorts by time and the uuid separates messages sent in the same nanosecond.
func (m *MessageRepository) AppendMessage(ctx context.Context, room domain.Room, content string, sender *string) (domain.Message, error) {
	if err := m.ready(ctx); err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:      uuid.New(),
		Room:    room.Key,
		Content: content,
		Sent:    time.Now().UTC(),
		Sender:  sender,
	}
	key := fmt.Sprintf("%s%s:%019d:%s", messagePrefix, room.ID, message.Sent.UnixNano(), message.ID)
	err := m.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, key, messageRecord{
			ID:      message.ID,
			Room:    string(message.Room),
			Content: message.Content,
			Sent:    message.Sent,
			Sender:  message.Sender,
		})
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// ListMessages returns the messages of a room newest first, capped by limitMessages.
// An unknown room has no history.
func (m *MessageRepository) ListMessages(ctx context.Context, key domain.RoomID) ([]domain.Message, error) {
	if err := m.ready(ctx); err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0)
	err := m.db.View(func(txn *badger.Txn) error {
		var room roomRecord
		found, err := getJSON(txn, roomKey(key), &room)
		if err != nil || !found {
			return err
		}

		prefix := []byte(fmt.Sprintf("%s%s:", messagePrefix, room.ID))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key, then walk backwards
		for it.Seek(append(prefix, maxTimestamp...)); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(messages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			var record messageRecord
			if err = it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &record)
			}); err != nil {
				return err
			}
			messages = append(messages, domain.Message{
				ID:      record.ID,
				Room:    domain.RoomID(record.Room),
				Content: record.Content,
				Sent:    record.Sent,
				Sender:  record.Sender,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AppendFallbackEmail records a message written while no moderator was online.
func (m *MessageRepository) AppendFallbackEmail(ctx context.Context, email, content string) (domain.FallbackEmail, error) {
	if err := m.ready(ctx); err != nil {
		return domain.FallbackEmail{}, err
	}
	entry := domain.FallbackEmail{
		ID:       uuid.New(),
		Email:    email,
		Content:  content,
		Received: time.Now().UTC(),
	}
	key := fmt.Sprintf("%s%019d:%s", fallbackPrefix, entry.Received.UnixNano(), entry.ID)
	err := m.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, key, fallbackRecord(entry))
	})
	if err != nil {
		return domain.FallbackEmail{}, err
	}
	return entry, nil
}

// ListFallbackEmails returns every captured entry, oldest first.
func (m *MessageRepository) ListFallbackEmails(ctx context.Context) ([]domain.FallbackEmail, error) {
	if err := m.ready(ctx); err != nil {
		return nil, err
	}
	entries := make([]domain.FallbackEmail, 0)
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fallbackPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record fallbackRecord
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &record)
			}); err != nil {
				return err
			}
			entries = append(entries, domain.FallbackEmail(record))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Ping reports whether the store can still serve requests.
func (m *MessageRepository) Ping(ctx context.Context) error {
	return m.ready(ctx)
}

func (m *MessageRepository) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.db.IsClosed() {
		return errStoreClosed
	}
	return nil
}

func roomKey(key domain.RoomID) string {
	return roomPrefix + string(key)
}

func getJSON(txn *badger.Txn, key string, out any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(v []byte) error {
		return json.Unmarshal(v, out)
	})
}

func setJSON(txn *badger.Txn, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}
