// README: Order service implements creation, state transitions, reads and live subscriptions.
package order

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"gigmarket/internal/types"
)

// Pricing splits a package price into the amount charged, the platform fee
// and the freelancer's earning.
type Pricing interface {
	Quote(price types.Money) (total, fee, earning types.Money)
}

// PackageTerms are the commercial terms of one gig package.
type PackageTerms struct {
	Price        types.Money `json:"price"`
	DeliveryDays int         `json:"deliveryTime"`
	Revisions    Revisions   `json:"revisions"`
}

type GigSummary struct {
	ID           types.ID                `json:"id"`
	Title        string                  `json:"title"`
	ImageURL     string                  `json:"imageUrl,omitempty"`
	FreelancerID types.ID                `json:"freelancerId"`
	Packages     map[string]PackageTerms `json:"-"`
}

type PartySummary struct {
	ID          types.ID `json:"id"`
	DisplayName string   `json:"displayName"`
	PhotoURL    string   `json:"photoUrl,omitempty"`
}

// Directory resolves gigs and users. Missing entries yield an error matching ErrNotFound.
type Directory interface {
	GigSummary(ctx context.Context, id types.ID) (*GigSummary, error)
	PartySummary(ctx context.Context, id types.ID) (*PartySummary, error)
}

// PaymentGateway starts a checkout; completion arrives later through MarkPaymentCompleted.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, o *Order) (paymentURL string, err error)
}

type Service struct {
	store     Repository
	machine   *Machine
	pricing   Pricing
	directory Directory
	payments  PaymentGateway
	events    EventLog
	outbox    *Outbox
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   serviceMetrics
	now       func() time.Time
	newID     func() types.ID
	batchSize int
}

type Option func(*Service)

func WithPricing(p Pricing) Option { return func(s *Service) { s.pricing = p } }

func WithDirectory(d Directory) Option { return func(s *Service) { s.directory = d } }

func WithPaymentGateway(g PaymentGateway) Option { return func(s *Service) { s.payments = g } }

func WithEventLog(l EventLog) Option { return func(s *Service) { s.events = l } }

func WithOutbox(o *Outbox) Option { return func(s *Service) { s.outbox = o } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(f func() types.ID) Option { return func(s *Service) { s.newID = f } }

func WithTracer(t trace.Tracer) Option { return func(s *Service) { s.tracer = t } }

func WithMeter(m metric.Meter) Option { return func(s *Service) { s.metrics = newServiceMetrics(m) } }

// WithSweepBatchSize bounds how many orders each expiry sweep kind handles per run.
func WithSweepBatchSize(n int) Option { return func(s *Service) { s.batchSize = n } }

func NewService(store Repository, deadlines Deadlines, opts ...Option) *Service {
	s := &Service{
		store:     store,
		machine:   NewMachine(deadlines),
		events:    NopEventLog{},
		logger:    zap.NewNop(),
		tracer:    defaultTracer(),
		metrics:   newServiceMetrics(defaultMeter()),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     types.NewID,
		batchSize: 100,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.outbox != nil {
		s.outbox.metrics = s.metrics
	}
	return s
}

// Machine exposes the transition rules so callers can predict outcomes
// without re-implementing them.
func (s *Service) Machine() *Machine { return s.machine }

type CreateCommand struct {
	ClientID     types.ID
	FreelancerID types.ID
	GigID        types.ID
	PackageType  string
	Requirements string
}

type StatusCommand struct {
	OrderID types.ID
	Status  Status
	ActorID types.ID
	Extra   Extra
}

type StatusChange struct {
	OldStatus Status `json:"oldStatus"`
	NewStatus Status `json:"newStatus"`
}

// Delivery is the freelancer's handover for deliverOrder and completeRevision.
type Delivery struct {
	Message string
	Files   []string
}

type RevisionSummary struct {
	RevisionCount int       `json:"revisionCount"`
	MaxRevisions  Revisions `json:"maxRevisions"`
}

type CheckoutResult struct {
	Order      *Order `json:"order"`
	PaymentURL string `json:"paymentUrl"`
}

type OrderDetails struct {
	*Order
	Gig        *GigSummary   `json:"gig,omitempty"`
	Client     *PartySummary `json:"client,omitempty"`
	Freelancer *PartySummary `json:"freelancer,omitempty"`
}

func (s *Service) CreateOrder(ctx context.Context, cmd CreateCommand) (o *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder",
		trace.WithAttributes(attribute.String("order.gig_id", string(cmd.GigID))))
	defer func() { endSpan(span, err) }()

	if cmd.ClientID == "" {
		return nil, invalid("clientId", "is required")
	}
	if cmd.GigID == "" {
		return nil, invalid("gigId", "is required")
	}
	if strings.TrimSpace(cmd.PackageType) == "" {
		return nil, invalid("packageType", "is required")
	}
	if s.directory == nil {
		return nil, fmt.Errorf("order: create: no directory configured")
	}

	gig, err := s.directory.GigSummary(ctx, cmd.GigID)
	if err != nil {
		return nil, err
	}
	terms, ok := gig.Packages[cmd.PackageType]
	if !ok {
		return nil, invalid("packageType", fmt.Sprintf("%q is not offered by gig %s", cmd.PackageType, gig.ID))
	}
	freelancerID := gig.FreelancerID
	if cmd.FreelancerID != "" && cmd.FreelancerID != freelancerID {
		return nil, invalid("freelancerId", "does not own the gig")
	}
	if freelancerID == cmd.ClientID {
		return nil, invalid("clientId", "must differ from freelancerId")
	}
	if !terms.Price.IsPositive() {
		return nil, invalid("price", "must be greater than zero")
	}
	if terms.DeliveryDays <= 0 {
		return nil, invalid("deliveryTime", "must be at least one day")
	}
	if _, err := s.directory.PartySummary(ctx, cmd.ClientID); err != nil {
		return nil, err
	}
	if _, err := s.directory.PartySummary(ctx, freelancerID); err != nil {
		return nil, err
	}

	now := s.now()
	total, fee, earning := terms.Price, types.NewMoney(0, terms.Price.Currency), terms.Price
	if s.pricing != nil {
		total, fee, earning = s.pricing.Quote(terms.Price)
	}
	id := s.newID()
	o = &Order{
		ID:                id,
		OrderNumber:       orderNumber(now, id),
		ClientID:          cmd.ClientID,
		FreelancerID:      freelancerID,
		GigID:             gig.ID,
		PackageType:       cmd.PackageType,
		Requirements:      strings.TrimSpace(cmd.Requirements),
		Price:             terms.Price,
		TotalAmount:       total,
		PlatformFee:       fee,
		FreelancerEarning: earning,
		DeliveryDays:      terms.DeliveryDays,
		Revisions:         terms.Revisions,
		Status:            StatusDraft,
		PaymentStatus:     PaymentPending,
		Timeline:          map[TimelineKey]time.Time{TimelineCreated: now},
		PaymentExpiredAt:  timePtr(s.machine.deadlines.PaymentExpiry(now)),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, &Event{
		OrderID:    id,
		FromStatus: StatusNone,
		ToStatus:   StatusDraft,
		ActorType:  string(RoleClient),
		ActorID:    &cmd.ClientID,
		CreatedAt:  now,
	})
	s.logger.Info("order created",
		zap.String("order_id", string(id)),
		zap.String("order_number", o.OrderNumber),
		zap.String("client_id", string(o.ClientID)),
		zap.String("freelancer_id", string(o.FreelancerID)),
	)
	return o, nil
}

// UpdateOrderStatus is the general transition entry point.
func (s *Service) UpdateOrderStatus(ctx context.Context, cmd StatusCommand) (StatusChange, error) {
	tr, err := s.transition(ctx, "order.UpdateOrderStatus", cmd.OrderID, cmd.Status, UserActor(cmd.ActorID), cmd.Extra, nil)
	if err != nil {
		return StatusChange{}, err
	}
	return StatusChange{OldStatus: tr.From, NewStatus: tr.To}, nil
}

func (s *Service) DeliverOrder(ctx context.Context, id, actorID types.ID, d Delivery) (*Order, error) {
	tr, err := s.transition(ctx, "order.DeliverOrder", id, StatusDelivered, UserActor(actorID),
		Extra{Message: d.Message, Files: d.Files}, requireStatus(StatusActive, StatusInRevision))
	if err != nil {
		return nil, err
	}
	return tr.Order, nil
}

func (s *Service) RequestRevision(ctx context.Context, id, actorID types.ID, message string) (RevisionSummary, error) {
	tr, err := s.transition(ctx, "order.RequestRevision", id, StatusInRevision, UserActor(actorID),
		Extra{Message: message}, requireStatus(StatusDelivered))
	if err != nil {
		return RevisionSummary{}, err
	}
	return RevisionSummary{RevisionCount: tr.Order.RevisionCount, MaxRevisions: tr.Order.Revisions}, nil
}

func (s *Service) CompleteRevision(ctx context.Context, id, actorID types.ID, d Delivery) (*Order, error) {
	tr, err := s.transition(ctx, "order.CompleteRevision", id, StatusDelivered, UserActor(actorID),
		Extra{Message: d.Message, Files: d.Files}, requireStatus(StatusInRevision))
	if err != nil {
		return nil, err
	}
	return tr.Order, nil
}

func (s *Service) CancelOrder(ctx context.Context, id, actorID types.ID, reason string) (*Order, error) {
	tr, err := s.transition(ctx, "order.CancelOrder", id, StatusCancelled, UserActor(actorID),
		Extra{Reason: strings.TrimSpace(reason)}, nil)
	if err != nil {
		return nil, err
	}
	return tr.Order, nil
}

// AcceptOrder is the freelancer confirming a paid order.
func (s *Service) AcceptOrder(ctx context.Context, id, actorID types.ID) (*Order, error) {
	tr, err := s.transition(ctx, "order.AcceptOrder", id, StatusActive, UserActor(actorID), Extra{}, requireStatus(StatusPending))
	if err != nil {
		return nil, err
	}
	return tr.Order, nil
}

// CompleteOrder is the client accepting a delivery.
func (s *Service) CompleteOrder(ctx context.Context, id, actorID types.ID) (*Order, error) {
	tr, err := s.transition(ctx, "order.CompleteOrder", id, StatusCompleted, UserActor(actorID), Extra{}, requireStatus(StatusDelivered))
	if err != nil {
		return nil, err
	}
	return tr.Order, nil
}

// Checkout moves a draft into payment and asks the gateway for a payment
// link. Calling it again while in payment only issues a new link.
func (s *Service) Checkout(ctx context.Context, id, actorID types.ID) (CheckoutResult, error) {
	tr, err := s.transition(ctx, "order.Checkout", id, StatusPayment, UserActor(actorID), Extra{}, requireStatus(StatusDraft, StatusPayment))
	if err != nil {
		return CheckoutResult{}, err
	}
	if s.payments == nil {
		return CheckoutResult{Order: tr.Order}, nil
	}
	url, err := s.payments.CreatePayment(ctx, tr.Order)
	if err != nil {
		s.logger.Error("payment link failed", zap.String("order_id", string(id)), zap.Error(err))
		return CheckoutResult{}, fmt.Errorf("order: create payment: %w", err)
	}
	return CheckoutResult{Order: tr.Order, PaymentURL: url}, nil
}

// MarkPaymentCompleted consumes the gateway's payment-completed signal.
func (s *Service) MarkPaymentCompleted(ctx context.Context, id types.ID) (*Order, error) {
	tr, err := s.transition(ctx, "order.MarkPaymentCompleted", id, StatusPending, SystemActor, Extra{}, requireStatus(StatusPayment, StatusPending))
	if err != nil {
		s.logger.Warn("payment completion not applied", zap.String("order_id", string(id)), zap.Error(err))
		return nil, err
	}
	return tr.Order, nil
}

// Get returns an order visible to one of its parties.
func (s *Service) Get(ctx context.Context, id, actorID types.ID) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(actorID) {
		return nil, &PermissionError{ActorID: actorID, OrderID: id}
	}
	return o, nil
}

func (s *Service) History(ctx context.Context, id, actorID types.ID) ([]Event, error) {
	if _, err := s.Get(ctx, id, actorID); err != nil {
		return nil, err
	}
	return s.events.ListEvents(ctx, id)
}

func (s *Service) ListUserOrders(ctx context.Context, userID types.ID, role Role) ([]*Order, error) {
	if userID == "" {
		return nil, invalid("userId", "is required")
	}
	return s.store.ListByParty(ctx, userID, role)
}

// SubscribeToUserOrders streams the user's orders to fn until the returned
// func is called or ctx ends. fn runs on a single goroutine.
func (s *Service) SubscribeToUserOrders(ctx context.Context, userID types.ID, role Role, fn func([]*Order)) (unsubscribe func(), err error) {
	if userID == "" {
		return nil, invalid("userId", "is required")
	}
	if fn == nil {
		return nil, invalid("callback", "is required")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.store.Watch(ctx, userID, role, fn); err != nil {
			s.logger.Error("order subscription ended",
				zap.String("user_id", string(userID)), zap.String("role", string(role)), zap.Error(err))
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

// transitionGuard narrows the statuses a convenience operation starts from.
type transitionGuard func(o *Order, to Status) error

func requireStatus(allowed ...Status) transitionGuard {
	return func(o *Order, to Status) error {
		for _, st := range allowed {
			if o.Status == st {
				return nil
			}
		}
		return &TransitionError{From: o.Status, To: to}
	}
}

func (s *Service) transition(ctx context.Context, spanName string, id types.ID, to Status, actor Actor, extra Extra, guard transitionGuard) (tr *Transition, err error) {
	ctx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("order.id", string(id)),
		attribute.String("order.to", string(to)),
	))
	defer func() { endSpan(span, err) }()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tr, err = s.machine.Apply(o, to, actor, extra, s.now())
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(o, to); err != nil {
			return nil, err
		}
	}
	if tr.NoOp {
		return tr, nil
	}
	if err := s.store.Save(ctx, tr.Order); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, tr)
	return tr, nil
}

// afterCommit records and announces a transition that is already durable.
func (s *Service) afterCommit(ctx context.Context, tr *Transition) {
	s.appendEvent(ctx, eventFor(tr, tr.Order.UpdatedAt))
	s.metrics.recordTransition(ctx, tr.From, tr.To)
	s.logger.Info("order status changed",
		zap.String("order_id", string(tr.Order.ID)),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.String("actor_id", string(tr.Actor.ID)),
	)
	s.outbox.Emit(ctx, tr)
}

func (s *Service) appendEvent(ctx context.Context, e *Event) {
	if err := s.events.AppendEvent(ctx, e); err != nil {
		s.logger.Warn("order event not recorded",
			zap.String("order_id", string(e.OrderID)), zap.String("to", string(e.ToStatus)), zap.Error(err))
	}
}

// orderNumber renders ORD-YYYYMMDD-XXXXXX; the suffix comes from the order id.
func orderNumber(now time.Time, id types.ID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(string(id), "-", ""))
	if len(suffix) < 6 {
		suffix = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix[:6])
}
