package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/events"
	"github.com/DoyleJ11/esports-draft/internal/store"
)

type seriesGame struct {
	seriesID   string
	gameNumber int
	picks      []int
}

// sinkJob is side-effect work handed off by the loop so storage and broker
// latency never stall a draft.
type sinkJob struct {
	events []engine.Event
	save   *engine.State
	series *seriesGame
}

func (j sinkJob) empty() bool {
	return j.save == nil && j.series == nil && !publishable(j.events)
}

func publishable(evts []engine.Event) bool {
	for _, e := range evts {
		if events.Published(e) {
			return true
		}
	}
	return false
}

func (s *Session) enqueue(job sinkJob) {
	if job.empty() {
		return
	}
	select {
	case s.sink <- job:
	default:
		s.log.Warn("sink full, dropping job", zap.Int("events", len(job.events)), zap.Bool("save", job.save != nil))
	}
}

func (s *Session) runSink(st store.Store, pub events.Publisher) {
	for job := range s.sink {
		ctx, cancel := context.WithTimeout(context.Background(), s.settings.StoreTimeout)
		if st != nil && job.save != nil {
			if err := st.SaveSnapshot(ctx, *job.save); err != nil {
				s.log.Error("save snapshot", zap.Error(err))
			}
		}
		if st != nil && job.series != nil {
			g := job.series
			if err := st.RecordSeriesGame(ctx, g.seriesID, g.gameNumber, g.picks); err != nil {
				s.log.Error("record series game", zap.String("series_id", g.seriesID), zap.Error(err))
			}
		}
		if publishable(job.events) {
			if err := pub.Publish(ctx, s.id, job.events); err != nil {
				s.log.Warn("publish events", zap.Error(err))
			}
		}
		cancel()
	}
}
