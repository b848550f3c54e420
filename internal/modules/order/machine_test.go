package order

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gigmarket/internal/types"
)

// TestCanTransition verifies the state machine transition table without a store.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusDraft, StatusPayment, true},
		{StatusPayment, StatusPending, true},
		{StatusPending, StatusActive, true},
		{StatusActive, StatusDelivered, true},
		{StatusDelivered, StatusCompleted, true},
		// revision loop
		{StatusDelivered, StatusInRevision, true},
		{StatusInRevision, StatusDelivered, true},
		// cancels from every non-terminal state
		{StatusDraft, StatusCancelled, true},
		{StatusPayment, StatusCancelled, true},
		{StatusPending, StatusCancelled, true},
		{StatusActive, StatusCancelled, true},
		{StatusDelivered, StatusCancelled, true},
		{StatusInRevision, StatusCancelled, true},
		// invalid: terminal states have no outgoing transitions
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusInRevision, false},
		{StatusCancelled, StatusDraft, false},
		// invalid: skipping or reversing states
		{StatusDraft, StatusActive, false},
		{StatusPayment, StatusActive, false},
		{StatusActive, StatusCompleted, false},
		{StatusInRevision, StatusCompleted, false},
		{StatusActive, StatusPending, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
	if !IsTerminal(StatusCompleted) || !IsTerminal(StatusCancelled) || IsTerminal(StatusDelivered) {
		t.Error("IsTerminal disagrees with the table")
	}
}

func testOrder(status Status) *Order {
	return &Order{
		ID:           "o1",
		OrderNumber:  "ORD-20240101-ABCDEF",
		ClientID:     "c1",
		FreelancerID: "f1",
		Status:       status,
		DeliveryDays: 7,
		Revisions:    Numeric(2),
		Timeline:     map[TimelineKey]time.Time{TimelineCreated: t0},
		CreatedAt:    t0,
	}
}

func TestApplyEdgePermissions(t *testing.T) {
	m := NewMachine(NewDeadlines(testPaymentTimeout))
	cases := []struct {
		from, to Status
		actor    Actor
		wantErr  error
	}{
		{StatusDraft, StatusPayment, UserActor("c1"), nil},
		{StatusDraft, StatusPayment, UserActor("f1"), nil},
		{StatusPending, StatusActive, UserActor("f1"), nil},
		{StatusPending, StatusActive, UserActor("c1"), ErrPermission},
		{StatusActive, StatusDelivered, UserActor("c1"), ErrPermission},
		{StatusDelivered, StatusCompleted, UserActor("f1"), ErrPermission},
		{StatusDelivered, StatusInRevision, UserActor("c1"), nil},
		{StatusInRevision, StatusDelivered, UserActor("f1"), nil},
		{StatusActive, StatusCancelled, UserActor("c1"), nil},
		{StatusActive, StatusCancelled, UserActor("f1"), nil},
		{StatusPending, StatusCancelled, SystemActor, nil},
		{StatusActive, StatusCancelled, UserActor("x9"), ErrPermission},
		{StatusActive, StatusCancelled, UserActor(""), ErrPermission},
		{StatusCompleted, StatusCancelled, UserActor("c1"), ErrInvalidTransition},
	}
	for _, tc := range cases {
		_, err := m.Apply(testOrder(tc.from), tc.to, tc.actor, Extra{}, t0)
		if tc.wantErr == nil && err != nil {
			t.Errorf("%s -> %s by %s: unexpected error %v", tc.from, tc.to, tc.actor.ID, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Errorf("%s -> %s by %s: expected %v, got %v", tc.from, tc.to, tc.actor.ID, tc.wantErr, err)
		}
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	m := NewMachine(NewDeadlines(testPaymentTimeout))
	o := testOrder(StatusDelivered)
	tr, err := m.Apply(o, StatusInRevision, UserActor("c1"), Extra{Message: "fix"}, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if o.Status != StatusDelivered || o.RevisionCount != 0 || len(o.Timeline) != 1 {
		t.Fatalf("input order was modified: %+v", o)
	}
	if tr.Order.RevisionCount != 1 || tr.Order.Status != StatusInRevision {
		t.Fatalf("unexpected next order: %+v", tr.Order)
	}
	if tr.Chat == nil || tr.Chat.Extra.Message != "fix" {
		t.Fatalf("expected chat event carrying the message, got %+v", tr.Chat)
	}
	if len(tr.Notifications) != 1 || tr.Notifications[0].RecipientID != "f1" {
		t.Fatalf("expected freelancer notification, got %+v", tr.Notifications)
	}
}

func TestWorkDeadlineIgnoresLocalZone(t *testing.T) {
	m := NewMachine(NewDeadlines(testPaymentTimeout))
	zone := time.FixedZone("BRT", -3*60*60)
	confirmed := time.Date(2023, 12, 31, 21, 0, 0, 0, zone) // 2024-01-01T00:00Z

	tr, err := m.Apply(testOrder(StatusPending), StatusActive, UserActor("f1"), Extra{}, confirmed)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	if !tr.Order.WorkDeadline.Equal(want) {
		t.Fatalf("expected %s, got %s", want, tr.Order.WorkDeadline)
	}
	if tr.Order.Timeline[TimelineConfirmed].IsZero() || tr.Order.Timeline[TimelineStarted].IsZero() {
		t.Fatal("confirmed and started must be stamped")
	}
}

func TestDeadlinesAreNotOverwritten(t *testing.T) {
	m := NewMachine(NewDeadlines(testPaymentTimeout))
	o := testOrder(StatusPayment)
	paid := t0.Add(-time.Hour)
	o.PaidAt = &paid

	tr, err := m.Apply(o, StatusPending, SystemActor, Extra{}, t0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !tr.Order.PaidAt.Equal(paid) {
		t.Fatalf("paidAt overwritten: %s", tr.Order.PaidAt)
	}
	if !tr.Order.ConfirmationDeadline.Equal(paid.Add(ConfirmationWindow)) {
		t.Fatalf("confirmation deadline should derive from paidAt, got %s", tr.Order.ConfirmationDeadline)
	}
	if len(tr.Notifications) != 2 {
		t.Fatalf("system transition should notify both parties, got %d", len(tr.Notifications))
	}
}

func TestChatOnlyForVisibleStatuses(t *testing.T) {
	m := NewMachine(NewDeadlines(testPaymentTimeout))
	tr, err := m.Apply(testOrder(StatusDraft), StatusPayment, UserActor("c1"), Extra{}, t0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tr.Chat != nil {
		t.Fatal("payment status should not post to chat")
	}
	tr, err = m.Apply(testOrder(StatusDraft), StatusCancelled, UserActor("c1"), Extra{Reason: "changed mind"}, t0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tr.Chat == nil || tr.Chat.Extra.Reason != "changed mind" {
		t.Fatalf("cancellation should post to chat with reason, got %+v", tr.Chat)
	}
}

func TestActiveDeadline(t *testing.T) {
	o := testOrder(StatusPending)
	due := t0.Add(ConfirmationWindow)
	o.ConfirmationDeadline = &due

	kind, at := ActiveDeadline(o)
	if kind != DeadlineConfirmation || !at.Equal(due) {
		t.Fatalf("unexpected active deadline %s %v", kind, at)
	}
	o.Status = StatusCompleted
	if kind, at := ActiveDeadline(o); kind != DeadlineNone || at != nil {
		t.Fatalf("completed orders have no deadline, got %s %v", kind, at)
	}
}

func TestRevisionAllowance(t *testing.T) {
	if Numeric(2).Allows(2) || !Numeric(2).Allows(1) {
		t.Error("numeric allowance off by one")
	}
	if !Unlimited().Allows(1000) {
		t.Error("unlimited must always allow")
	}
	if n, ok := Numeric(-1).Limit(); !ok || n != 0 {
		t.Errorf("negative counts clamp to zero, got %d %v", n, ok)
	}

	o := testOrder(StatusDelivered)
	o.Revisions = Numeric(0)
	err := CheckRevision(o)
	if !errors.Is(err, ErrRevisionQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if CanRequestRevision(o) {
		t.Fatal("zero allowance must not allow revisions")
	}
	o.Status = StatusActive
	if !errors.Is(CheckRevision(o), ErrInvalidTransition) {
		t.Fatal("revisions are only requested from delivered")
	}
}

func TestParseRevisions(t *testing.T) {
	cases := []struct {
		in      any
		want    Revisions
		wantErr bool
	}{
		{nil, Numeric(0), false},
		{"unlimited", Unlimited(), false},
		{" Unlimited ", Unlimited(), false},
		{"3", Numeric(3), false},
		{int64(2), Numeric(2), false},
		{float64(5), Numeric(5), false},
		{1.5, Revisions{}, true},
		{"-1", Revisions{}, true},
		{"many", Revisions{}, true},
		{true, Revisions{}, true},
	}
	for _, tc := range cases {
		got, err := ParseRevisions(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseRevisions(%v) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("ParseRevisions(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}

	var pkg struct {
		Revisions Revisions `json:"revisions"`
	}
	if err := json.Unmarshal([]byte(`{"revisions":"unlimited"}`), &pkg); err != nil || !pkg.Revisions.IsUnlimited() {
		t.Fatalf("decode unlimited: %v %s", err, pkg.Revisions)
	}
	b, _ := json.Marshal(Numeric(4))
	if string(b) != "4" {
		t.Fatalf("numeric allowance encodes as a number, got %s", b)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	forbidden := &TransitionError{From: StatusDelivered, To: StatusCompleted, Role: RoleFreelancer, Forbidden: true}
	if !errors.Is(forbidden, ErrPermission) || !errors.Is(forbidden, ErrInvalidTransition) {
		t.Error("forbidden edge should match both permission and transition errors")
	}
	missing := &TransitionError{From: StatusCompleted, To: StatusCancelled}
	if errors.Is(missing, ErrPermission) {
		t.Error("missing edge is not a permission error")
	}

	expiry := &ExpiryProcessingError{Updated: 2, Failed: map[types.ID]error{"a": ErrConflict}}
	if !errors.Is(expiry, ErrExpiryProcessing) || !errors.Is(expiry, ErrConflict) {
		t.Error("expiry error should match its sentinel and wrap per-order causes")
	}
}

func TestRevisionQuotaAtLimit(t *testing.T) {
	m := NewMachine(NewDeadlines(testPaymentTimeout))
	o := testOrder(StatusDelivered)
	o.Revisions = Numeric(3)
	o.RevisionCount = 3

	_, err := m.Apply(o, StatusInRevision, UserActor("c1"), Extra{Message: "one more"}, t0)
	var quota *RevisionQuotaError
	if !errors.As(err, &quota) {
		t.Fatalf("expected RevisionQuotaError, got %v", err)
	}
	if quota.Current != 3 || quota.Max != 3 {
		t.Fatalf("expected current=3 max=3, got %+v", quota)
	}
}
