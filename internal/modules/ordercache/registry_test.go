package ordercache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counter() (*atomic.Int32, func()) {
	var n atomic.Int32
	return &n, func() { n.Add(1) }
}

func TestRegistryReplacesExistingListener(t *testing.T) {
	r := NewRegistry()
	key := Key{UserID: "u1", Type: "orders:client"}

	firstCalls, first := counter()
	secondCalls, second := counter()

	releaseFirst := r.Register(key, first)
	assert.True(t, r.Active(key))

	releaseSecond := r.Register(key, second)
	assert.Equal(t, int32(1), firstCalls.Load(), "re-registering tears down the old listener")
	assert.Equal(t, 1, r.Len())

	releaseFirst()
	assert.True(t, r.Active(key), "a stale release must not remove the newer registration")
	assert.Equal(t, int32(1), firstCalls.Load())
	assert.Zero(t, secondCalls.Load())

	releaseSecond()
	releaseSecond()
	assert.Equal(t, int32(1), secondCalls.Load())
	assert.False(t, r.Active(key))
}

func TestRegistryKeysAreIndependent(t *testing.T) {
	r := NewRegistry()
	clientCalls, client := counter()
	_, freelancer := counter()

	r.Register(Key{UserID: "u1", Type: "orders:client"}, client)
	r.Register(Key{UserID: "u1", Type: "orders:freelancer"}, freelancer)
	r.Register(Key{UserID: "u2", Type: "orders:client"}, func() {})

	assert.Equal(t, 3, r.Len())
	assert.Zero(t, clientCalls.Load())

	assert.True(t, r.Unregister(Key{UserID: "u1", Type: "orders:client"}))
	assert.False(t, r.Unregister(Key{UserID: "u1", Type: "orders:client"}))
	assert.Equal(t, int32(1), clientCalls.Load())
	assert.Equal(t, 2, r.Len())
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	aCalls, a := counter()
	bCalls, b := counter()
	releaseA := r.Register(Key{UserID: "a", Type: "orders:any"}, a)
	r.Register(Key{UserID: "b", Type: "orders:any"}, b)

	r.Close()
	assert.Zero(t, r.Len())
	assert.Equal(t, int32(1), aCalls.Load())
	assert.Equal(t, int32(1), bCalls.Load())

	releaseA()
	assert.Equal(t, int32(1), aCalls.Load(), "release after close is a no-op")

	lateCalls, late := counter()
	r.Register(Key{UserID: "c", Type: "orders:any"}, late)
	assert.Equal(t, int32(1), lateCalls.Load(), "registering on a closed registry tears down at once")
	assert.Zero(t, r.Len())
}

func TestReserveWaitsForPendingAttach(t *testing.T) {
	r := NewRegistry()
	key := Key{UserID: "u1", Type: "orders:client"}

	first, err := r.Reserve(context.Background(), key)
	require.NoError(t, err)

	got := make(chan *Reservation, 1)
	go func() {
		res, err := r.Reserve(context.Background(), key)
		if err == nil {
			got <- res
		}
	}()

	select {
	case <-got:
		t.Fatal("second reservation must wait for the first to attach")
	case <-time.After(30 * time.Millisecond):
	}

	firstCalls, firstUnsub := counter()
	_, err = first.Attach(firstUnsub)
	require.NoError(t, err)

	var second *Reservation
	select {
	case second = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("second reservation never completed")
	}
	assert.Equal(t, int32(1), firstCalls.Load(), "the attached listener is torn down by the next reservation")

	_, secondUnsub := counter()
	release, err := second.Attach(secondUnsub)
	require.NoError(t, err)
	release()
	assert.Zero(t, r.Len())
}

func TestReserveHonoursContext(t *testing.T) {
	r := NewRegistry()
	key := Key{UserID: "u1", Type: "orders:any"}
	_, err := r.Reserve(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Reserve(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAttachAfterTeardown(t *testing.T) {
	r := NewRegistry()
	key := Key{UserID: "u1", Type: "orders:any"}

	res, err := r.Reserve(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, r.Unregister(key))
	calls, unsub := counter()
	_, err = res.Attach(unsub)
	assert.ErrorIs(t, err, ErrReplaced)
	assert.Equal(t, int32(1), calls.Load())

	res, err = r.Reserve(context.Background(), key)
	require.NoError(t, err)
	r.Close()
	calls, unsub = counter()
	_, err = res.Attach(unsub)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int32(1), calls.Load())

	_, err = r.Reserve(context.Background(), key)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCancelReleasesKey(t *testing.T) {
	r := NewRegistry()
	key := Key{UserID: "u1", Type: "orders:any"}
	res, err := r.Reserve(context.Background(), key)
	require.NoError(t, err)
	res.Cancel()
	assert.False(t, r.Active(key))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = r.Reserve(ctx, key)
	assert.NoError(t, err)
}
