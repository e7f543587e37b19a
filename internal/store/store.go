// Package store persists session snapshots and the per-series champion
// history that feeds fearless drafts.
package store

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/DoyleJ11/esports-draft/internal/engine"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	SaveSnapshot(ctx context.Context, s engine.State) error
	// LoadSnapshot returns ErrNotFound for unknown sessions.
	LoadSnapshot(ctx context.Context, sessionID string) (engine.State, error)
	// RecordSeriesGame replaces the picks stored for one game of a series.
	RecordSeriesGame(ctx context.Context, seriesID string, gameNumber int, picks []int) error
	// UsedChampions returns every champion picked so far in the series, sorted.
	UsedChampions(ctx context.Context, seriesID string) ([]int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Memory is the default in-process store. It keeps state only for the life of
// the process.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string]engine.State
	series    map[string]map[int][]int
}

func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string]engine.State),
		series:    make(map[string]map[int][]int),
	}
}

func (m *Memory) SaveSnapshot(_ context.Context, s engine.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.SessionID] = s.Snapshot()
	return nil
}

func (m *Memory) LoadSnapshot(_ context.Context, sessionID string) (engine.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[sessionID]
	if !ok {
		return engine.State{}, ErrNotFound
	}
	return s.Snapshot(), nil
}

func (m *Memory) RecordSeriesGame(_ context.Context, seriesID string, gameNumber int, picks []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.series[seriesID] == nil {
		m.series[seriesID] = make(map[int][]int)
	}
	m.series[seriesID][gameNumber] = slices.Clone(picks)
	return nil
}

func (m *Memory) UsedChampions(_ context.Context, seriesID string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int
	for _, picks := range m.series[seriesID] {
		out = append(out, picks...)
	}
	return MergeIDs(out), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// MergeIDs sorts and dedupes ids.
func MergeIDs(ids []int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []int{}
	}
	return out
}
