// README: Notification inbox and device tokens backed by Firestore.
package notification

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gigmarket/internal/types"
)

const (
	notificationsCollection = "notifications"
	usersCollection         = "users"
	tokensField             = "fcmTokens"
)

// Inbox persists notifications and resolves a user's device tokens.
type Inbox interface {
	Save(ctx context.Context, r *Record) error
	Tokens(ctx context.Context, userID types.ID) ([]string, error)
	RemoveToken(ctx context.Context, userID types.ID, token string) error
}

type FirestoreInbox struct {
	client *firestore.Client
}

func NewFirestoreInbox(client *firestore.Client) *FirestoreInbox {
	return &FirestoreInbox{client: client}
}

func (s *FirestoreInbox) Save(ctx context.Context, r *Record) error {
	_, err := s.client.Collection(notificationsCollection).Doc(string(r.ID)).Set(ctx, r)
	return err
}

func (s *FirestoreInbox) Tokens(ctx context.Context, userID types.ID) ([]string, error) {
	snap, err := s.client.Collection(usersCollection).Doc(string(userID)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notification: load tokens for %s: %w", userID, err)
	}
	var user struct {
		Tokens []string `firestore:"fcmTokens"`
	}
	if err := snap.DataTo(&user); err != nil {
		return nil, fmt.Errorf("notification: decode user %s: %w", userID, err)
	}
	return user.Tokens, nil
}

func (s *FirestoreInbox) RemoveToken(ctx context.Context, userID types.ID, token string) error {
	_, err := s.client.Collection(usersCollection).Doc(string(userID)).Update(ctx, []firestore.Update{
		{Path: tokensField, Value: firestore.ArrayRemove(token)},
	})
	return err
}
