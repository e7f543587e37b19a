package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/esports-draft/internal/engine"
)

func TestMemory_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.LoadSnapshot(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	s := engine.NewState("ABC123", engine.DefaultRules(), []int{1, 2, 3})
	s.Teams.Blue.Bans = append(s.Teams.Blue.Bans, 7)
	require.NoError(t, m.SaveSnapshot(ctx, s))

	// Mutating the caller's copy must not leak into the store.
	s.Teams.Blue.Bans[0] = 99

	got, err := m.LoadSnapshot(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, []int{7}, got.Teams.Blue.Bans)
	assert.Equal(t, []int{1, 2, 3}, got.Pool)
}

func TestMemory_SeriesHistory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	used, err := m.UsedChampions(ctx, "series-1")
	require.NoError(t, err)
	assert.Empty(t, used)

	require.NoError(t, m.RecordSeriesGame(ctx, "series-1", 1, []int{157, 64, 12}))
	require.NoError(t, m.RecordSeriesGame(ctx, "series-1", 2, []int{3, 64}))
	// Re-recording a game replaces it.
	require.NoError(t, m.RecordSeriesGame(ctx, "series-1", 2, []int{3, 4}))
	require.NoError(t, m.RecordSeriesGame(ctx, "series-2", 1, []int{500}))

	used, err = m.UsedChampions(ctx, "series-1")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 12, 64, 157}, used)
}

func TestMergeIDs(t *testing.T) {
	assert.Equal(t, []int{1, 2, 5}, MergeIDs([]int{5, 1, 2, 5, 1}))
	assert.Equal(t, []int{}, MergeIDs(nil))
}
