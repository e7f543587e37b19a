//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/store"
)

func setup(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, s.db.Exec("TRUNCATE draft_sessions, draft_series_picks").Error)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	_, err := s.LoadSnapshot(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)

	st := engine.NewState("PG0001", engine.DefaultRules(), nil)
	st.Config.SeriesID = "series-pg"
	require.NoError(t, s.SaveSnapshot(ctx, st))

	st.Phase = engine.PhaseLobby
	require.NoError(t, s.SaveSnapshot(ctx, st))

	got, err := s.LoadSnapshot(ctx, "PG0001")
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseLobby, got.Phase)
	assert.Equal(t, "series-pg", got.Config.SeriesID)
}

func TestSeriesHistory(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	require.NoError(t, s.RecordSeriesGame(ctx, "series-pg", 1, []int{157, 64}))
	require.NoError(t, s.RecordSeriesGame(ctx, "series-pg", 2, []int{3, 64}))
	require.NoError(t, s.RecordSeriesGame(ctx, "series-pg", 2, []int{3, 9}))

	used, err := s.UsedChampions(ctx, "series-pg")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 9, 64, 157}, used)
}
