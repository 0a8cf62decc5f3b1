package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/models"
	"securechat/internal/store"
)

type memorySource struct {
	mu       sync.Mutex
	messages []models.Message
	failNext error
	lists    int
	notifier *store.Notifier
}

func newMemorySource() *memorySource {
	return &memorySource{notifier: store.NewNotifier()}
}

func (m *memorySource) List(context.Context) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if err := m.failNext; err != nil {
		m.failNext = nil
		return nil, err
	}
	return append([]models.Message(nil), m.messages...), nil
}

func (m *memorySource) Changes() (<-chan struct{}, func()) {
	return m.notifier.Subscribe()
}

func (m *memorySource) add(text string) {
	m.mu.Lock()
	m.messages = append(m.messages, models.Message{ID: text, Text: text, CreatedAt: time.Now()})
	m.mu.Unlock()
	m.notifier.Notify()
}

func (m *memorySource) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

func receive(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C():
		require.True(t, ok, "subscription ended")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot received")
		return Snapshot{}
	}
}

func TestFirstSnapshotIsImmediate(t *testing.T) {
	src := newMemorySource()
	src.add("a")
	log, _ := test.NewNullLogger()

	sub, err := Subscribe(context.Background(), src, log)
	require.NoError(t, err)
	defer sub.Close()

	require.Len(t, sub.C(), 1)
	snap := receive(t, sub)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Len(t, snap.Messages, 1)
}

func TestEveryChangeDeliversFullSnapshot(t *testing.T) {
	req := require.New(t)
	src := newMemorySource()
	log, _ := test.NewNullLogger()

	sub, err := Subscribe(context.Background(), src, log)
	req.NoError(err)
	defer sub.Close()
	req.Empty(receive(t, sub).Messages)

	src.add("a")
	snap := receive(t, sub)
	req.Equal(uint64(2), snap.Seq)
	req.Len(snap.Messages, 1)

	src.add("b")
	snap = receive(t, sub)
	req.Equal(uint64(3), snap.Seq)
	req.Equal("a", snap.Messages[0].Text)
	req.Equal("b", snap.Messages[1].Text)
}

func TestSlowReaderGetsLatestSnapshot(t *testing.T) {
	req := require.New(t)
	src := newMemorySource()
	log, _ := test.NewNullLogger()

	sub, err := Subscribe(context.Background(), src, log)
	req.NoError(err)
	defer sub.Close()

	// first snapshot is never read
	src.add("a")
	req.Eventually(func() bool { return src.listCalls() == 2 }, 2*time.Second, time.Millisecond)
	src.add("b")
	req.Eventually(func() bool { return src.listCalls() == 3 }, 2*time.Second, time.Millisecond)

	snap := receive(t, sub)
	req.GreaterOrEqual(snap.Seq, uint64(2), "stale first snapshot was not replaced")
	for snap.Seq < 3 {
		snap = receive(t, sub)
	}
	req.Len(snap.Messages, 2)
}

func TestCloseStopsDelivery(t *testing.T) {
	req := require.New(t)
	src := newMemorySource()
	log, _ := test.NewNullLogger()

	sub, err := Subscribe(context.Background(), src, log)
	req.NoError(err)
	req.Equal(1, src.notifier.Len())

	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	req.False(ok, "snapshot received after Close")
	req.Equal(0, src.notifier.Len())

	src.add("late")
	_, ok = <-sub.C()
	req.False(ok)
}

func TestContextCancellationEndsSubscription(t *testing.T) {
	src := newMemorySource()
	log, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := Subscribe(ctx, src, log)
	require.NoError(t, err)
	defer sub.Close()

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription still running after cancel")
	}
	assert.Equal(t, 0, src.notifier.Len())
}

func TestRefreshErrorIsLoggedAndSurvived(t *testing.T) {
	req := require.New(t)
	src := newMemorySource()
	log, hook := test.NewNullLogger()

	sub, err := Subscribe(context.Background(), src, log)
	req.NoError(err)
	defer sub.Close()
	receive(t, sub)

	src.mu.Lock()
	src.failNext = errors.New("store unavailable")
	src.mu.Unlock()
	src.add("lost refresh")
	req.Eventually(func() bool { return len(hook.AllEntries()) == 1 }, 2*time.Second, time.Millisecond)
	req.Equal("refreshing message snapshot failed", hook.LastEntry().Message)

	src.add("recovered")
	snap := receive(t, sub)
	req.Len(snap.Messages, 2)
}

func TestSubscribeFailsWhenFirstListFails(t *testing.T) {
	src := newMemorySource()
	src.failNext = errors.New("boom")
	log, _ := test.NewNullLogger()

	_, err := Subscribe(context.Background(), src, log)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 0, src.notifier.Len())
}
