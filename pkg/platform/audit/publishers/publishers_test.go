package publishers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "healthcommons/pkg/domain"
	audit "healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/audit/publishers/compliance"
	"healthcommons/pkg/platform/audit/publishers/security"
	"healthcommons/pkg/platform/audit/store/memory"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("outbox down") }

func TestCompliancePublisher_FailClosed(t *testing.T) {
	t.Run("persists event synchronously", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := compliance.New(store)
		patient := id.AgentID(uuid.New())

		err := pub.Emit(context.Background(), audit.ComplianceEvent{
			AgentID: patient,
			Action:  string(audit.EventConsentGranted),
		})
		require.NoError(t, err)

		events, err := store.ListByAgent(context.Background(), patient)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, audit.CategoryCompliance, events[0].Category)
		assert.False(t, events[0].Timestamp.IsZero())
	})

	t.Run("returns error when store fails", func(t *testing.T) {
		pub := compliance.New(failingStore{})
		err := pub.Emit(context.Background(), audit.ComplianceEvent{
			AgentID: id.AgentID(uuid.New()),
			Action:  string(audit.EventQueryExecuted),
		})
		assert.Error(t, err)
	})

	t.Run("rejects event without agent", func(t *testing.T) {
		pub := compliance.New(memory.NewInMemoryStore())
		err := pub.Emit(context.Background(), audit.ComplianceEvent{Action: "x"})
		assert.Error(t, err)
	})
}

func TestSecurityPublisher_DrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := security.New(store, security.WithFlushInterval(time.Hour))
	patient := id.AgentID(uuid.New())

	for range 10 {
		pub.Emit(context.Background(), audit.SecurityEvent{
			AgentID: patient,
			Action:  string(audit.EventAccessDenied),
		})
	}
	require.NoError(t, pub.Close())

	events, err := store.ListByAgent(context.Background(), patient)
	require.NoError(t, err)
	assert.Len(t, events, 10)
	assert.Equal(t, audit.SeverityInfo, events[0].Severity)
}

func TestSecurityPublisher_DropsOldestOnOverflow(t *testing.T) {
	buf := security.NewRingBuffer(2)
	buf.Enqueue(audit.SecurityEvent{Action: "a"})
	buf.Enqueue(audit.SecurityEvent{Action: "b"})
	buf.Enqueue(audit.SecurityEvent{Action: "c"})

	batch := buf.DequeueBatch(10)
	require.Len(t, batch, 2)
	assert.Equal(t, "b", batch[0].Action)
	assert.Equal(t, "c", batch[1].Action)
	assert.Equal(t, int64(1), buf.Dropped())
}
