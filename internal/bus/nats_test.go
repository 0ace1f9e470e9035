package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/exposed-backend/internal/store"
)

type captured struct {
	subject string
	data    []byte
}

type fakeConn struct{ msgs []captured }

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.msgs = append(f.msgs, captured{subject, data})
	return nil
}

func TestPublisher_PublishesPerGameSubject(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "exposed.transcript")

	card := 3
	err := p.Publish(context.Background(), store.Event{
		ID: 9, GameID: "g1", Role: "player1", Action: store.ActionEliminate,
		Card: &card, Timestamp: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "exposed.transcript.g1", conn.msgs[0].subject)

	var decoded store.Event
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &decoded))
	assert.Equal(t, store.ActionEliminate, decoded.Action)
	require.NotNil(t, decoded.Card)
	assert.Equal(t, 3, *decoded.Card)
}

func TestPublisher_CancelledContext(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "exposed.transcript")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, p.Publish(ctx, store.Event{GameID: "g1"}))
	assert.Empty(t, conn.msgs)
}
