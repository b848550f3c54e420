// README: Chat message store backed by Firebase Realtime Database.
package chat

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"
)

// Store appends a message to a chat and moves the chat's lastMessage pointer.
type Store interface {
	Append(ctx context.Context, chatID string, m Message) error
}

type RTDBStore struct {
	client *db.Client
}

func NewRTDBStore(client *db.Client) *RTDBStore {
	return &RTDBStore{client: client}
}

func (s *RTDBStore) Append(ctx context.Context, chatID string, m Message) error {
	ref, err := s.client.NewRef(fmt.Sprintf("chats/%s/messages", chatID)).Push(ctx, m)
	if err != nil {
		return fmt.Errorf("chat: push message to %s: %w", chatID, err)
	}
	err = s.client.NewRef("chats/"+chatID).Update(ctx, map[string]interface{}{
		"participants":  m.Participants,
		"lastMessage":   map[string]interface{}{"id": ref.Key, "text": m.Text, "senderId": m.SenderID, "timestamp": m.Timestamp},
		"lastMessageAt": m.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("chat: update %s: %w", chatID, err)
	}
	return nil
}
