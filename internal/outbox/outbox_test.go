package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

func event(id string, typ domain.OrderEventType) domain.OrderEvent {
	return domain.OrderEvent{
		Type:       typ,
		OrderID:    id,
		Status:     domain.OrderStatusAuthorized,
		OccurredAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_AppendPendingAck(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Publish(context.Background(), event("o1", domain.EventOrderCreated)))
	require.NoError(t, s.Publish(context.Background(), event("o1", domain.EventOrderCompleted)))
	require.NoError(t, s.Publish(context.Background(), event("o2", domain.EventOrderCreated)))

	pending, err := s.Pending(2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, uint64(1), pending[0].Seq)
	assert.Equal(t, domain.EventOrderCreated, pending[0].Event.Type)
	assert.Equal(t, domain.EventOrderCompleted, pending[1].Event.Type)

	require.NoError(t, s.Ack(pending[0].Seq))
	pending, err = s.Pending(0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, uint64(2), pending[0].Seq)
	assert.Equal(t, "o2", pending[1].Event.OrderID)
}

func TestStore_SequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.Append(event("o1", domain.EventOrderCreated))
	require.NoError(t, err)
	seq, err := s.Append(event("o2", domain.EventOrderCreated))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	next, err := s.Append(event("o3", domain.EventOrderCreated))
	require.NoError(t, err)
	assert.Equal(t, seq+1, next)

	pending, err := s.Pending(0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "o3", pending[2].Event.OrderID)
	assert.True(t, pending[0].Event.OccurredAt.Equal(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestStore_MarkFailed(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	seq, err := s.Append(event("o1", domain.EventOrderCreated))
	require.NoError(t, err)

	n, err := s.MarkFailed(seq)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = s.MarkFailed(seq)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	pending, err := s.Pending(0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.EqualValues(t, 2, pending[0].Attempts)

	require.NoError(t, s.Ack(seq))
	n, err = s.MarkFailed(seq)
	require.NoError(t, err)
	assert.Zero(t, n)
}
