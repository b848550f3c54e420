package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

type memoryInbox struct {
	mu      sync.Mutex
	records []*Record
	tokens  map[types.ID][]string
	saveErr error
}

func (m *memoryInbox) Save(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memoryInbox) Tokens(_ context.Context, userID types.ID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[userID], nil
}

func (m *memoryInbox) RemoveToken(_ context.Context, userID types.ID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tokens[userID][:0]
	for _, t := range m.tokens[userID] {
		if t != token {
			kept = append(kept, t)
		}
	}
	m.tokens[userID] = kept
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*messaging.Message
	fail map[string]error
}

func (f *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[m.Token]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, m)
	return "msg-" + m.Token, nil
}

func newTestDispatcher(inbox Inbox, sender Sender) *Dispatcher {
	d := NewDispatcher(inbox, sender, nil)
	d.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	d.newID = func() types.ID { return "n1" }
	return d
}

func deliveredEvent() order.NotificationEvent {
	return order.NotificationEvent{
		OrderID:       "o1",
		OrderNumber:   "ORD-20240101-ABCDEF",
		RecipientID:   "client-1",
		RecipientRole: order.RoleClient,
		Status:        order.StatusDelivered,
	}
}

func TestNotifySavesRecordAndPushesEveryDevice(t *testing.T) {
	inbox := &memoryInbox{tokens: map[types.ID][]string{"client-1": {"phone", "tablet"}}}
	sender := &fakeSender{}
	d := newTestDispatcher(inbox, sender)

	require.NoError(t, d.Notify(context.Background(), deliveredEvent()))

	require.Len(t, inbox.records, 1)
	rec := inbox.records[0]
	assert.Equal(t, types.ID("client-1"), rec.UserID)
	assert.Equal(t, TypeOrderStatus, rec.Type)
	assert.Equal(t, "Order delivered", rec.Title)
	assert.Contains(t, rec.Body, "ORD-20240101-ABCDEF")
	assert.False(t, rec.Read)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "o1", sender.sent[0].Data["order_id"])
	assert.Equal(t, "delivered", sender.sent[0].Data["status"])
	assert.Equal(t, "high", sender.sent[0].Android.Priority)
}

func TestNotifyWithoutDevices(t *testing.T) {
	inbox := &memoryInbox{tokens: map[types.ID][]string{}}
	sender := &fakeSender{}
	d := newTestDispatcher(inbox, sender)

	require.NoError(t, d.Notify(context.Background(), deliveredEvent()))
	assert.Len(t, inbox.records, 1)
	assert.Empty(t, sender.sent)
}

func TestNotifyReportsPushFailures(t *testing.T) {
	inbox := &memoryInbox{tokens: map[types.ID][]string{"client-1": {"good", "bad"}}}
	sender := &fakeSender{fail: map[string]error{"bad": errors.New("quota exceeded")}}
	d := newTestDispatcher(inbox, sender)

	err := d.Notify(context.Background(), deliveredEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Len(t, sender.sent, 1, "healthy devices still receive the push")
	assert.Len(t, inbox.records, 1)
}

func TestNotifyInboxFailureSkipsPush(t *testing.T) {
	inbox := &memoryInbox{saveErr: errors.New("unavailable"), tokens: map[types.ID][]string{"client-1": {"phone"}}}
	sender := &fakeSender{}
	d := newTestDispatcher(inbox, sender)

	err := d.Notify(context.Background(), deliveredEvent())
	require.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestContentMentionsCancellationReason(t *testing.T) {
	e := deliveredEvent()
	e.Status = order.StatusCancelled
	e.Extra.Reason = order.ReasonPaymentTimeout
	title, body := content(e)
	assert.Equal(t, "Order cancelled", title)
	assert.Contains(t, body, "payment timeout")
}
