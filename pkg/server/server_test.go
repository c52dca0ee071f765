package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittoserve/pkg/docroot"
	"github.com/marmos91/dittoserve/pkg/docroot/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter blocks in Serve until its context is cancelled, Stop is
// called, or serveErr fires.
type fakeAdapter struct {
	protocol string
	port     int
	serveErr chan error

	mu      sync.Mutex
	store   docroot.Store
	stopped bool
	stopAt  time.Time
	stopCh  chan struct{}
	once    sync.Once
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{
		protocol: protocol,
		port:     port,
		serveErr: make(chan error, 1),
		stopCh:   make(chan struct{}),
	}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	select {
	case <-ctx.Done():
		<-f.stopCh
		return nil
	case <-f.stopCh:
		return nil
	case err := <-f.serveErr:
		return err
	}
}

func (f *fakeAdapter) SetStore(store docroot.Store) {
	f.mu.Lock()
	f.store = store
	f.mu.Unlock()
}

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.stopAt = time.Now()
	f.mu.Unlock()
	f.once.Do(func() { close(f.stopCh) })
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func (f *fakeAdapter) wasStopped() (bool, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped, f.stopAt
}

func TestNewPanicsOnNilStore(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}

func TestAddAdapterInjectsStore(t *testing.T) {
	store := memory.NewMemoryStore()
	srv := New(store)
	a := newFakeAdapter("HTTP", 8080)

	require.NoError(t, srv.AddAdapter(a))

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Same(t, store, a.store)
	assert.Len(t, srv.Adapters(), 1)
}

func TestAddAdapterRejectsConflicts(t *testing.T) {
	srv := New(memory.NewMemoryStore())
	require.NoError(t, srv.AddAdapter(newFakeAdapter("HTTP", 8080)))

	err := srv.AddAdapter(newFakeAdapter("HTTP", 8081))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = srv.AddAdapter(newFakeAdapter("HTTPS", 8080))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in use")
}

func TestServeWithoutAdapters(t *testing.T) {
	srv := New(memory.NewMemoryStore())
	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no adapters registered")
}

func TestServeStopsAdaptersInReverseOrderOnCancel(t *testing.T) {
	srv := New(memory.NewMemoryStore())
	first := newFakeAdapter("HTTP", 8080)
	second := newFakeAdapter("ALT", 8081)
	require.NoError(t, srv.AddAdapter(first))
	require.NoError(t, srv.AddAdapter(second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	firstStopped, firstAt := first.wasStopped()
	secondStopped, secondAt := second.wasStopped()
	require.True(t, firstStopped)
	require.True(t, secondStopped)
	assert.False(t, secondAt.After(firstAt), "adapters must stop in reverse registration order")

	assert.Panics(t, func() { _ = srv.AddAdapter(newFakeAdapter("LATE", 9000)) })
}

func TestServeStopsAllWhenOneAdapterFails(t *testing.T) {
	srv := New(memory.NewMemoryStore())
	healthy := newFakeAdapter("HTTP", 8080)
	failing := newFakeAdapter("ALT", 8081)
	require.NoError(t, srv.AddAdapter(healthy))
	require.NoError(t, srv.AddAdapter(failing))

	boom := errors.New("bind: address already in use")
	failing.serveErr <- boom

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "ALT adapter error")

	stopped, _ := healthy.wasStopped()
	assert.True(t, stopped)
}

func TestServeTwice(t *testing.T) {
	srv := New(memory.NewMemoryStore())
	a := newFakeAdapter("HTTP", 8080)
	require.NoError(t, srv.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, srv.Serve(ctx), context.Canceled)
	assert.ErrorIs(t, srv.Serve(ctx), ErrAlreadyServed)
}

func TestSetStopTimeout(t *testing.T) {
	srv := New(memory.NewMemoryStore())
	srv.SetStopTimeout(time.Second)
	assert.Equal(t, time.Second, srv.stopTimeout)

	srv.SetStopTimeout(0)
	assert.Equal(t, DefaultStopTimeout, srv.stopTimeout)
}
