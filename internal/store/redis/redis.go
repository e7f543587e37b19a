// Package redis keeps draft snapshots and series history in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/store"
)

// Key patterns.
func snapshotKey(sessionID string) string { return "draft:session:" + sessionID + ":state" }
func seriesKey(seriesID string) string    { return "draft:series:" + seriesID + ":picks" }

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// Open connects to redisURL. Snapshots expire after ttl; zero keeps them forever.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, ttl), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) SaveSnapshot(ctx context.Context, st engine.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.rdb.Set(ctx, snapshotKey(st.SessionID), data, s.ttl).Err()
}

func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (engine.State, error) {
	data, err := s.rdb.Get(ctx, snapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return engine.State{}, store.ErrNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("get snapshot: %w", err)
	}
	var st engine.State
	if err := json.Unmarshal(data, &st); err != nil {
		return engine.State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return st, nil
}

// RecordSeriesGame stores the picks of one game as a hash field keyed by game number.
func (s *Store) RecordSeriesGame(ctx context.Context, seriesID string, gameNumber int, picks []int) error {
	data, err := json.Marshal(store.MergeIDs(picks))
	if err != nil {
		return fmt.Errorf("marshal picks: %w", err)
	}
	return s.rdb.HSet(ctx, seriesKey(seriesID), strconv.Itoa(gameNumber), data).Err()
}

func (s *Store) UsedChampions(ctx context.Context, seriesID string) ([]int, error) {
	games, err := s.rdb.HVals(ctx, seriesKey(seriesID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get series picks: %w", err)
	}
	var all []int
	for _, g := range games {
		var picks []int
		if err := json.Unmarshal([]byte(g), &picks); err != nil {
			return nil, fmt.Errorf("decode series picks: %w", err)
		}
		all = append(all, picks...)
	}
	return store.MergeIDs(all), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
