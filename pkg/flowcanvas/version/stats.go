package version

import (
	"context"
	"time"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
)

// RecordRunStart counts a started run and persists the metadata. It
// implements flowcanvas.StatsRecorder; failures are logged and reported to
// the error handler.
func (m *Manager) RecordRunStart(ctx context.Context, _ string, at time.Time) {
	m.updateStats(ctx, func(s *Stats) {
		s.TotalRuns++
		t := at.UTC()
		s.LastRunAt = &t
	})
}

// RecordRunFinish counts a finished run towards the success rate.
func (m *Manager) RecordRunFinish(ctx context.Context, _ string, succeeded bool, _ time.Time) {
	m.updateStats(ctx, func(s *Stats) {
		if succeeded {
			s.SuccessfulRuns++
		}
	})
}

// Stats returns the current usage counters.
func (m *Manager) Stats() Stats {
	return m.Metadata().Stats
}

func (m *Manager) updateStats(ctx context.Context, fn func(*Stats)) {
	err := m.save(ctx, KindStats, func(meta *Metadata, _ graph.Snapshot, _ time.Time) {
		fn(&meta.Stats)
		meta.Stats.SuccessRate = successRate(meta.Stats)
	}, false)
	if err != nil {
		m.report(err)
	}
}

func successRate(s Stats) float64 {
	if s.TotalRuns == 0 {
		return 0
	}
	return float64(s.SuccessfulRuns) / float64(s.TotalRuns)
}
