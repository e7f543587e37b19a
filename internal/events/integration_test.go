//go:build integration

package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/esports-draft/internal/engine"
)

func TestNATSPublisher(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	msgs := make(chan *nats.Msg, 8)
	s, err := sub.ChanSubscribe("test.draft.>", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	pub, err := NewNATS(NATSConfig{URL: url, SubjectPrefix: "test.draft"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pub.Close()

	err = pub.Publish(context.Background(), "ABC123", []engine.Event{
		{Type: engine.EvtHoverChanged, Team: engine.TeamBlue, ChampionID: 3},
		{Type: engine.EvtChampionBanned, Team: engine.TeamBlue, ChampionID: 3},
	})
	require.NoError(t, err)
	require.NoError(t, pub.nc.Flush())

	select {
	case m := <-msgs:
		assert.Equal(t, "test.draft.ABC123.ChampionBanned", m.Subject)
		var env Envelope
		require.NoError(t, json.Unmarshal(m.Data, &env))
		assert.Equal(t, "ABC123", env.SessionID)
		assert.Equal(t, 3, env.Event.ChampionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	select {
	case m := <-msgs:
		t.Fatalf("unexpected message on %s", m.Subject)
	case <-time.After(100 * time.Millisecond):
	}
}
