// README: Directory reads from the gigs and users Firestore collections.
package directory

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

const (
	gigsCollection  = "gigs"
	usersCollection = "users"
)

type FirestoreDirectory struct {
	client *firestore.Client
}

func NewFirestoreDirectory(client *firestore.Client) *FirestoreDirectory {
	return &FirestoreDirectory{client: client}
}

func (d *FirestoreDirectory) GigSummary(ctx context.Context, id types.ID) (*order.GigSummary, error) {
	var doc gigDoc
	if err := d.get(ctx, gigsCollection, "gig", id, &doc); err != nil {
		return nil, err
	}
	return toGigSummary(id, doc)
}

func (d *FirestoreDirectory) PartySummary(ctx context.Context, id types.ID) (*order.PartySummary, error) {
	var doc userDoc
	if err := d.get(ctx, usersCollection, "user", id, &doc); err != nil {
		return nil, err
	}
	return toPartySummary(id, doc), nil
}

func (d *FirestoreDirectory) get(ctx context.Context, collection, kind string, id types.ID, out any) error {
	if id == "" {
		return &order.NotFoundError{Kind: kind, ID: id}
	}
	snap, err := d.client.Collection(collection).Doc(string(id)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return &order.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return fmt.Errorf("directory: get %s %s: %w", kind, id, err)
	}
	if err := snap.DataTo(out); err != nil {
		return fmt.Errorf("directory: decode %s %s: %w", kind, id, err)
	}
	return nil
}
