package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"roomcast/domain"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	GetMessages(room domain.RoomID, cursor *string) ([]DiskMessage, *string, error)
}

type MessageRepository struct {
	db        *badger.DB
	log       *slog.Logger
	pageLimit *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, pageLimit *int) MessageRepository {
	return MessageRepository{db: db, log: log, pageLimit: pageLimit}
}

// DiskMessage is the persisted shape of a room message. Records are stored
// as JSON, which is also the wire format of the system.
type DiskMessage struct {
	ID      uuid.UUID `json:"id"`
	Room    string    `json:"room"`
	AgentID string    `json:"agent_id"`
	Name    string    `json:"name"`
	Avatar  string    `json:"avatar"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

func FromMessage(m domain.Message) DiskMessage {
	return DiskMessage{
		ID:      m.ID,
		Room:    string(m.Room),
		AgentID: m.Sender.AgentID,
		Name:    m.Sender.Name,
		Avatar:  m.Sender.Avatar,
		Content: m.Content,
		At:      m.At,
	}
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		message.Room,
		message.At.UnixNano(),
		message.ID,
	)
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// GetMessages retrieves messages for a specific room using a prefix scan.
// Thanks to the padded timestamp in the key, messages are naturally sorted
// by time; the reverse iterator yields newest first. It stops collecting
// once the configured pageLimit is reached and hands back the cursor part
// of the last visited key so the next page can resume after it.
func (m MessageRepository) GetMessages(room domain.RoomID, cursor *string) ([]DiskMessage, *string, error) {
	var diskMessages []DiskMessage
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible position msg:{room}:9999999999999999999
			// then walk backwards through the most recent messages
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.pageLimit != nil && len(diskMessages) == *m.pageLimit {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.pageLimit))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				var message DiskMessage
				if err := json.Unmarshal(value, &message); err != nil {
					return err
				}
				diskMessages = append(diskMessages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(diskMessages) == 0 {
		return nil, nil, nil
	}
	return diskMessages, &lastKey, nil
}
