package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Report aggregates one run's processing statistics for the periodic
// verification summary.
type Report struct {
	mu sync.Mutex

	RunID     string
	StartedAt time.Time

	Processed  int
	Irrelevant int
	Filtered   int
	Admitted   int
	Duplicates int
	Errors     int
	SinkErrors int

	sentiments map[string]int
	latencies  []time.Duration
}

// NewReport opens a report with a fresh run ID.
func NewReport() *Report {
	return &Report{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		sentiments: make(map[string]int),
	}
}

// RecordLatency notes one message's end-to-end processing time.
func (r *Report) RecordLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies = append(r.latencies, d)
}

// RecordSentiment tallies one message's sentiment label.
func (r *Report) RecordSentiment(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentiments[label]++
}

func (r *Report) incr(field *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*field++
}

// Percentiles returns (p50, p90, p99) over recorded latencies.
func (r *Report) Percentiles() (p50, p90, p99 time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.latencies) == 0 {
		return 0, 0, 0
	}
	sorted := make([]time.Duration, len(r.latencies))
	copy(sorted, r.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	pick := func(q float64) time.Duration {
		idx := int(q * float64(len(sorted)-1))
		return sorted[idx]
	}
	return pick(0.50), pick(0.90), pick(0.99)
}

// Emit logs the verification summary.
func (r *Report) Emit() {
	p50, p90, p99 := r.Percentiles()
	r.mu.Lock()
	defer r.mu.Unlock()
	log.Info().
		Str("run_id", r.RunID).
		Int("processed", r.Processed).
		Int("irrelevant", r.Irrelevant).
		Int("filtered", r.Filtered).
		Int("admitted", r.Admitted).
		Int("duplicates", r.Duplicates).
		Int("errors", r.Errors).
		Int("sink_errors", r.SinkErrors).
		Interface("sentiment_distribution", r.sentiments).
		Dur("latency_p50", p50).
		Dur("latency_p90", p90).
		Dur("latency_p99", p99).
		Dur("uptime", time.Since(r.StartedAt)).
		Msg("verification report")
}
