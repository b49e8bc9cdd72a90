package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/outbox"
)

type sent struct {
	key   string
	event domain.OrderEvent
}

type fakeSink struct {
	failAfter int
	got       []sent
}

func (s *fakeSink) Send(_ context.Context, key, value []byte) error {
	if s.failAfter >= 0 && len(s.got) >= s.failAfter {
		return errors.New("broker down")
	}
	var ev domain.OrderEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return err
	}
	s.got = append(s.got, sent{key: string(key), event: ev})
	return nil
}

func openOutbox(t *testing.T) *outbox.Store {
	t.Helper()
	s, err := outbox.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func publish(t *testing.T, s *outbox.Store, id string, typ domain.OrderEventType) {
	t.Helper()
	require.NoError(t, s.Publish(context.Background(), domain.OrderEvent{
		Type:       typ,
		OrderID:    id,
		OccurredAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}))
}

func TestRelay_DeliversInOrderAndAcks(t *testing.T) {
	box := openOutbox(t)
	publish(t, box, "o1", domain.EventOrderCreated)
	publish(t, box, "o1", domain.EventOrderCompleted)

	sink := &fakeSink{failAfter: -1}
	n, err := New(box, sink, time.Second, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, sink.got, 2)
	assert.Equal(t, "o1", sink.got[0].key)
	assert.Equal(t, domain.EventOrderCreated, sink.got[0].event.Type)
	assert.Equal(t, domain.EventOrderCompleted, sink.got[1].event.Type)

	pending, err := box.Pending(0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRelay_StopsAtFirstFailure(t *testing.T) {
	box := openOutbox(t)
	publish(t, box, "o1", domain.EventOrderCreated)
	publish(t, box, "o2", domain.EventOrderCreated)
	publish(t, box, "o3", domain.EventOrderCreated)

	sink := &fakeSink{failAfter: 1}
	n, err := New(box, sink, time.Second, nil).RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)

	pending, err := box.Pending(0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "o2", pending[0].Event.OrderID)
	assert.EqualValues(t, 1, pending[0].Attempts)
	assert.EqualValues(t, 0, pending[1].Attempts)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	box := openOutbox(t)
	publish(t, box, "o1", domain.EventOrderCreated)
	sink := &fakeSink{failAfter: -1}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(box, sink, 5*time.Millisecond, nil).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		pending, err := box.Pending(0)
		return err == nil && len(pending) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
