// README: Order store backed by Cloud Firestore (documents, queries, bulk writes and snapshot listeners).
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gigmarket/internal/types"
)

const ordersCollection = "orders"

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

type revisionDoc struct {
	Message     string    `firestore:"message"`
	RequestedAt time.Time `firestore:"requestedAt"`
	RequestedBy string    `firestore:"requestedBy"`
}

type orderDoc struct {
	OrderNumber       string               `firestore:"orderNumber"`
	ClientID          string               `firestore:"clientId"`
	FreelancerID      string               `firestore:"freelancerId"`
	Participants      []string             `firestore:"participants"`
	GigID             string               `firestore:"gigId"`
	PackageType       string               `firestore:"packageType"`
	Requirements      string               `firestore:"requirements"`
	Currency          string               `firestore:"currency"`
	Price             int64                `firestore:"price"`
	TotalAmount       int64                `firestore:"totalAmount"`
	PlatformFee       int64                `firestore:"platformFee"`
	FreelancerEarning int64                `firestore:"freelancerEarning"`
	DeliveryTime      int64                `firestore:"deliveryTime"`
	Revisions         interface{}          `firestore:"revisions"`
	RevisionCount     int64                `firestore:"revisionCount"`
	RevisionRequests  []revisionDoc        `firestore:"revisionRequests"`
	Status            string               `firestore:"status"`
	PaymentStatus     string               `firestore:"paymentStatus"`
	RefundStatus      string               `firestore:"refundStatus,omitempty"`
	Timeline          map[string]time.Time `firestore:"timeline"`

	PaymentExpiredAt     *time.Time `firestore:"paymentExpiredAt"`
	PaidAt               *time.Time `firestore:"paidAt"`
	ConfirmationDeadline *time.Time `firestore:"confirmationDeadline"`
	WorkDeadline         *time.Time `firestore:"workDeadline"`

	DeliveryMessage string     `firestore:"deliveryMessage"`
	DeliveryFiles   []string   `firestore:"deliveryFiles"`
	DeliveredAt     *time.Time `firestore:"deliveredAt"`
	CompletedAt     *time.Time `firestore:"completedAt"`

	CancellationReason string     `firestore:"cancellationReason"`
	CancelledBy        string     `firestore:"cancelledBy"`
	CancelledAt        *time.Time `firestore:"cancelledAt"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func toDoc(o *Order) orderDoc {
	d := orderDoc{
		OrderNumber:          o.OrderNumber,
		ClientID:             string(o.ClientID),
		FreelancerID:         string(o.FreelancerID),
		Participants:         []string{string(o.ClientID), string(o.FreelancerID)},
		GigID:                string(o.GigID),
		PackageType:          o.PackageType,
		Requirements:         o.Requirements,
		Currency:             o.Price.Currency,
		Price:                o.Price.Amount,
		TotalAmount:          o.TotalAmount.Amount,
		PlatformFee:          o.PlatformFee.Amount,
		FreelancerEarning:    o.FreelancerEarning.Amount,
		DeliveryTime:         int64(o.DeliveryDays),
		Revisions:            o.Revisions.Value(),
		RevisionCount:        int64(o.RevisionCount),
		Status:               string(o.Status),
		PaymentStatus:        string(o.PaymentStatus),
		RefundStatus:         string(o.RefundStatus),
		Timeline:             make(map[string]time.Time, len(o.Timeline)),
		PaymentExpiredAt:     o.PaymentExpiredAt,
		PaidAt:               o.PaidAt,
		ConfirmationDeadline: o.ConfirmationDeadline,
		WorkDeadline:         o.WorkDeadline,
		DeliveryMessage:      o.DeliveryMessage,
		DeliveryFiles:        o.DeliveryFiles,
		DeliveredAt:          o.DeliveredAt,
		CompletedAt:          o.CompletedAt,
		CancellationReason:   o.CancellationReason,
		CancelledBy:          string(o.CancelledBy),
		CancelledAt:          o.CancelledAt,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
	for k, v := range o.Timeline {
		d.Timeline[string(k)] = v
	}
	for _, r := range o.RevisionLog {
		d.RevisionRequests = append(d.RevisionRequests, revisionDoc{
			Message:     r.Message,
			RequestedAt: r.RequestedAt,
			RequestedBy: string(r.RequestedBy),
		})
	}
	return d
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (*Order, error) {
	var d orderDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("order: decode %s: %w", snap.Ref.ID, err)
	}
	revisions, err := ParseRevisions(d.Revisions)
	if err != nil {
		return nil, err
	}
	money := func(v int64) types.Money { return types.NewMoney(v, d.Currency) }
	o := &Order{
		ID:                   types.ID(snap.Ref.ID),
		OrderNumber:          d.OrderNumber,
		ClientID:             types.ID(d.ClientID),
		FreelancerID:         types.ID(d.FreelancerID),
		GigID:                types.ID(d.GigID),
		PackageType:          d.PackageType,
		Requirements:         d.Requirements,
		Price:                money(d.Price),
		TotalAmount:          money(d.TotalAmount),
		PlatformFee:          money(d.PlatformFee),
		FreelancerEarning:    money(d.FreelancerEarning),
		DeliveryDays:         int(d.DeliveryTime),
		Revisions:            revisions,
		RevisionCount:        int(d.RevisionCount),
		Status:               Status(d.Status),
		PaymentStatus:        PaymentStatus(d.PaymentStatus),
		RefundStatus:         RefundStatus(d.RefundStatus),
		Timeline:             make(map[TimelineKey]time.Time, len(d.Timeline)),
		PaymentExpiredAt:     d.PaymentExpiredAt,
		PaidAt:               d.PaidAt,
		ConfirmationDeadline: d.ConfirmationDeadline,
		WorkDeadline:         d.WorkDeadline,
		DeliveryMessage:      d.DeliveryMessage,
		DeliveryFiles:        d.DeliveryFiles,
		DeliveredAt:          d.DeliveredAt,
		CompletedAt:          d.CompletedAt,
		CancellationReason:   d.CancellationReason,
		CancelledBy:          types.ID(d.CancelledBy),
		CancelledAt:          d.CancelledAt,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
		Version:              snap.UpdateTime,
	}
	for k, v := range d.Timeline {
		o.Timeline[TimelineKey(k)] = v
	}
	for _, r := range d.RevisionRequests {
		o.RevisionLog = append(o.RevisionLog, RevisionRequest{
			Message:     r.Message,
			RequestedAt: r.RequestedAt,
			RequestedBy: types.ID(r.RequestedBy),
		})
	}
	return o, nil
}

// updatesFor lists every mutable field. Identity, parties and commercial
// terms are fixed at creation and never rewritten.
func updatesFor(o *Order) []firestore.Update {
	d := toDoc(o)
	refund := interface{}(d.RefundStatus)
	if d.RefundStatus == "" {
		refund = firestore.Delete
	}
	return []firestore.Update{
		{Path: "status", Value: d.Status},
		{Path: "paymentStatus", Value: d.PaymentStatus},
		{Path: "refundStatus", Value: refund},
		{Path: "timeline", Value: d.Timeline},
		{Path: "revisionCount", Value: d.RevisionCount},
		{Path: "revisionRequests", Value: d.RevisionRequests},
		{Path: "paymentExpiredAt", Value: d.PaymentExpiredAt},
		{Path: "paidAt", Value: d.PaidAt},
		{Path: "confirmationDeadline", Value: d.ConfirmationDeadline},
		{Path: "workDeadline", Value: d.WorkDeadline},
		{Path: "deliveryMessage", Value: d.DeliveryMessage},
		{Path: "deliveryFiles", Value: d.DeliveryFiles},
		{Path: "deliveredAt", Value: d.DeliveredAt},
		{Path: "completedAt", Value: d.CompletedAt},
		{Path: "cancellationReason", Value: d.CancellationReason},
		{Path: "cancelledBy", Value: d.CancelledBy},
		{Path: "cancelledAt", Value: d.CancelledAt},
		{Path: "updatedAt", Value: d.UpdatedAt},
	}
}

func (s *FirestoreStore) doc(id types.ID) *firestore.DocumentRef {
	return s.client.Collection(ordersCollection).Doc(string(id))
}

func (s *FirestoreStore) Create(ctx context.Context, o *Order) error {
	res, err := s.doc(o.ID).Create(ctx, toDoc(o))
	if err != nil {
		return mapStoreError(err)
	}
	o.Version = res.UpdateTime
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	snap, err := s.doc(id).Get(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return fromSnapshot(snap)
}

func (s *FirestoreStore) Save(ctx context.Context, o *Order) error {
	res, err := s.doc(o.ID).Update(ctx, updatesFor(o), firestore.LastUpdateTime(o.Version))
	if err != nil {
		return mapStoreError(err)
	}
	o.Version = res.UpdateTime
	return nil
}

func (s *FirestoreStore) SaveBatch(ctx context.Context, orders []*Order) []error {
	errs := make([]error, len(orders))
	if len(orders) == 0 {
		return errs
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, len(orders))
	for i, o := range orders {
		job, err := bw.Update(s.doc(o.ID), updatesFor(o), firestore.LastUpdateTime(o.Version))
		if err != nil {
			errs[i] = mapStoreError(err)
			continue
		}
		jobs[i] = job
	}
	bw.End()
	for i, job := range jobs {
		if job == nil {
			continue
		}
		res, err := job.Results()
		if err != nil {
			errs[i] = mapStoreError(err)
			continue
		}
		orders[i].Version = res.UpdateTime
	}
	return errs
}

func (s *FirestoreStore) partyQuery(userID types.ID, role Role, statuses []Status) firestore.Query {
	col := s.client.Collection(ordersCollection)
	var q firestore.Query
	switch role {
	case RoleClient:
		q = col.Where("clientId", "==", string(userID))
	case RoleFreelancer:
		q = col.Where("freelancerId", "==", string(userID))
	default:
		q = col.Where("participants", "array-contains", string(userID))
	}
	if len(statuses) > 0 {
		in := make([]string, len(statuses))
		for i, st := range statuses {
			in[i] = string(st)
		}
		q = q.Where("status", "in", in)
	}
	return q.OrderBy("createdAt", firestore.Desc)
}

func (s *FirestoreStore) ListByParty(ctx context.Context, userID types.ID, role Role, statuses ...Status) ([]*Order, error) {
	return collect(s.partyQuery(userID, role, statuses).Documents(ctx))
}

func (s *FirestoreStore) ListExpired(ctx context.Context, kind DeadlineKind, now time.Time, limit int) ([]*Order, error) {
	st := statusForDeadline(kind)
	if st == StatusNone {
		return nil, fmt.Errorf("order: no expiry sweep for deadline %q", kind)
	}
	q := s.client.Collection(ordersCollection).
		Where("status", "==", string(st)).
		Where(string(kind), "<=", now).
		OrderBy(string(kind), firestore.Asc).
		Limit(limit)
	return collect(q.Documents(ctx))
}

func (s *FirestoreStore) Watch(ctx context.Context, userID types.ID, role Role, fn func([]*Order)) error {
	it := s.partyQuery(userID, role, nil).Snapshots(ctx)
	defer it.Stop()
	for {
		qs, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, iterator.Done) {
				return nil
			}
			return fmt.Errorf("order: watch: %w", err)
		}
		orders, err := collect(qs.Documents)
		if err != nil {
			return err
		}
		fn(orders)
	}
}

func collect(it *firestore.DocumentIterator) ([]*Order, error) {
	defer it.Stop()
	var out []*Order
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("order: query: %w", err)
		}
		o, err := fromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func mapStoreError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.FailedPrecondition, codes.AlreadyExists:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
