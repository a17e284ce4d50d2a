package cache

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of cache instrumentation.
type Stats struct {
	Hits          uint64        `json:"hits"`
	Misses        uint64        `json:"misses"`
	PrimaryHits   uint64        `json:"primary_hits"`
	SecondaryHits uint64        `json:"secondary_hits"`
	Sets          uint64        `json:"sets"`
	Deletes       uint64        `json:"deletes"`
	Errors        uint64        `json:"errors"`
	Compressed    uint64        `json:"compressed"`
	AvgLatency    time.Duration `json:"avg_latency"`
	HitRate       float64       `json:"hit_rate"`
}

type statsRecorder struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	primaryHits   atomic.Uint64
	secondaryHits atomic.Uint64
	sets          atomic.Uint64
	deletes       atomic.Uint64
	errors        atomic.Uint64
	compressed    atomic.Uint64
	reads         atomic.Uint64
	latencyNanos  atomic.Int64
}

func (s *statsRecorder) observeRead(elapsed time.Duration) {
	s.reads.Add(1)
	s.latencyNanos.Add(int64(elapsed))
}

func (s *statsRecorder) snapshot() Stats {
	st := Stats{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		PrimaryHits:   s.primaryHits.Load(),
		SecondaryHits: s.secondaryHits.Load(),
		Sets:          s.sets.Load(),
		Deletes:       s.deletes.Load(),
		Errors:        s.errors.Load(),
		Compressed:    s.compressed.Load(),
	}
	if reads := s.reads.Load(); reads > 0 {
		st.AvgLatency = time.Duration(s.latencyNanos.Load() / int64(reads))
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}

func (s *statsRecorder) reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.primaryHits.Store(0)
	s.secondaryHits.Store(0)
	s.sets.Store(0)
	s.deletes.Store(0)
	s.errors.Store(0)
	s.compressed.Store(0)
	s.reads.Store(0)
	s.latencyNanos.Store(0)
}
