package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/upwatch/internal/domain/events"
	"github.com/NordCoder/upwatch/internal/domain/outbox"
	"github.com/NordCoder/upwatch/internal/obs/retry"
	"github.com/NordCoder/upwatch/internal/repository/memory"
)

type fakeStatusEvents struct {
	mu    sync.Mutex
	got   []events.StatusChanged
	fails int
}

func (f *fakeStatusEvents) PublishStatusChanged(_ context.Context, ev events.StatusChanged) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("leader not available")
	}
	f.got = append(f.got, ev)
	return nil
}

func (f *fakeStatusEvents) published() []events.StatusChanged {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.StatusChanged(nil), f.got...)
}

func fastPolicy() retry.Policy {
	return retry.Policy{Name: "test", Attempts: 3, Backoff: retry.ExpoJitter{Base: time.Millisecond, Max: 2 * time.Millisecond}}
}

func enqueueStatus(t *testing.T, repo outbox.Repository, key string, ev events.StatusChanged) {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(context.Background(), outbox.Message{IdempotencyKey: key, Kind: outbox.KindStatusChanged, Data: data}))
}

func TestGlobalHandler_RetriesThenPublishes(t *testing.T) {
	pub := &fakeStatusEvents{fails: 2}
	h, err := MakeGlobalHandler(pub, fastPolicy())(outbox.KindStatusChanged)
	require.NoError(t, err)

	data, _ := json.Marshal(events.StatusChanged{MonitorID: 3, To: "down"})
	require.NoError(t, h(context.Background(), data))
	require.Len(t, pub.published(), 1)
	assert.Equal(t, int64(3), pub.published()[0].MonitorID)
}

func TestGlobalHandler_UnknownKindAndBadPayload(t *testing.T) {
	g := MakeGlobalHandler(&fakeStatusEvents{}, fastPolicy())
	_, err := g(outbox.Kind(99))
	assert.Error(t, err)

	h, err := g(outbox.KindStatusChanged)
	require.NoError(t, err)
	err = h(context.Background(), []byte("{"))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err), "a payload that cannot decode is not retried")
}

func TestRunner_RelaysAndMarks(t *testing.T) {
	st := memory.New()
	pub := &fakeStatusEvents{}
	enqueueStatus(t, st.Outbox, "status:1:10", events.StatusChanged{MonitorID: 1, To: "down"})
	enqueueStatus(t, st.Outbox, "status:2:11", events.StatusChanged{MonitorID: 2, To: "up"})

	r := NewOutboxRunner(zap.NewNop(), st.Outbox, MakeGlobalHandler(pub, fastPolicy()), Config{
		Workers: 1, BatchSize: 10, Wait: 10 * time.Millisecond, InProgressTTL: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(pub.published()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	left, err := st.Outbox.PickBatch(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, left, "relayed messages are marked SUCCESS")
}

func TestRunner_FailedMessageStaysPending(t *testing.T) {
	st := memory.New()
	pub := &fakeStatusEvents{fails: 100}
	enqueueStatus(t, st.Outbox, "status:1:10", events.StatusChanged{MonitorID: 1})

	r := NewOutboxRunner(zap.NewNop(), st.Outbox, MakeGlobalHandler(pub, fastPolicy()), Config{BatchSize: 10, InProgressTTL: time.Hour})
	r.tick(context.Background())

	assert.Empty(t, pub.published())
	fresh, err := st.Outbox.PickBatch(context.Background(), 10, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, fresh, "in progress until ttl")

	stale, err := st.Outbox.PickBatch(context.Background(), 10, -time.Second)
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}
