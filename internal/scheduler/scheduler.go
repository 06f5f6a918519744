// Package scheduler drives the periodic maintenance cycle: reputation
// recomputation for channels with fresh completions, archival of expired
// active signals, and a full republish to the configured sinks.
package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/outcome"
	"github.com/moonwatch/signalrun/internal/reputation"
	"github.com/moonwatch/signalrun/internal/sink"
)

// Scheduler runs the maintenance cycle on a fixed interval, falling back to
// the retry interval after a failed cycle.
type Scheduler struct {
	interval      time.Duration
	retryInterval time.Duration

	store      *outcome.Store
	tracker    *outcome.Tracker
	reputation *reputation.Engine
	cross      *reputation.CrossChannel
	publishers []sink.Publisher

	// completed counts per channel as of the previous cycle, so only
	// channels with fresh completions get recomputed.
	seenCompleted map[string]int
	now           func() time.Time
}

// New wires a scheduler. interval <= 0 selects 30 minutes, retry <= 0 selects
// 5 minutes.
func New(interval, retry time.Duration, store *outcome.Store, tracker *outcome.Tracker,
	rep *reputation.Engine, cross *reputation.CrossChannel, publishers []sink.Publisher) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if retry <= 0 {
		retry = 5 * time.Minute
	}
	return &Scheduler{
		interval:      interval,
		retryInterval: retry,
		store:         store,
		tracker:       tracker,
		reputation:    rep,
		cross:         cross,
		publishers:    publishers,
		seenCompleted: make(map[string]int),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run loops until the context is cancelled. The first cycle fires after one
// interval, not immediately, so startup backfill settles first.
func (s *Scheduler) Run(ctx context.Context) {
	wait := s.interval
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		case <-time.After(wait):
		}

		if err := s.RunCycle(ctx); err != nil {
			log.Error().Err(err).Dur("retry_in", s.retryInterval).Msg("maintenance cycle failed")
			wait = s.retryInterval
			continue
		}
		wait = s.interval
	}
}

// RunCycle executes one maintenance pass: archive expired signals, recompute
// reputations for channels with new completions, rebuild cross-channel
// aggregates, republish. Cancellation is honored between steps.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	start := s.now()

	archived, err := s.archiveExpired(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	recomputed, err := s.recomputeReputations()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.cross != nil {
		if err := s.cross.Rebuild(s.store.CompletedSignals()); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.publish(ctx); err != nil {
		return err
	}

	log.Info().
		Int("archived", archived).
		Int("reputations_recomputed", recomputed).
		Dur("took", s.now().Sub(start)).
		Msg("maintenance cycle done")
	return nil
}

func (s *Scheduler) archiveExpired(ctx context.Context) (int, error) {
	active := s.store.ActiveSignals()
	// Deterministic walk order regardless of map iteration. Addresses are
	// unique within the active set.
	sort.Slice(active, func(i, j int) bool {
		return active[i].Address < active[j].Address
	})

	archived := 0
	now := s.now()
	for _, o := range active {
		if o.Age(now) < models.TrackingWindow {
			continue
		}
		if err := s.tracker.ArchiveExpired(ctx, o); err != nil {
			return archived, err
		}
		archived++
	}
	return archived, nil
}

func (s *Scheduler) recomputeReputations() (int, error) {
	if s.reputation == nil {
		return 0, nil
	}
	completed := s.store.CompletedSignals()
	byChannel := make(map[string][]*models.SignalOutcome)
	for _, o := range completed {
		byChannel[o.ChannelName] = append(byChannel[o.ChannelName], o)
	}

	channels := make([]string, 0, len(byChannel))
	for ch := range byChannel {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	recomputed := 0
	for _, ch := range channels {
		if len(byChannel[ch]) == s.seenCompleted[ch] {
			continue
		}
		if _, err := s.reputation.Recompute(ch, byChannel[ch]); err != nil {
			return recomputed, err
		}
		s.seenCompleted[ch] = len(byChannel[ch])
		recomputed++
	}
	return recomputed, nil
}

func (s *Scheduler) publish(ctx context.Context) error {
	if len(s.publishers) == 0 {
		return nil
	}
	completed := s.store.CompletedSignals()
	var reps []*models.ChannelReputation
	if s.reputation != nil {
		reps = s.reputation.All()
	}
	var coins []*models.CoinCrossChannel
	if s.cross != nil {
		coins = s.cross.All()
	}

	for _, p := range s.publishers {
		if err := p.UpsertOutcomes(ctx, completed); err != nil {
			return err
		}
		if err := p.UpsertReputations(ctx, reps); err != nil {
			return err
		}
		if err := p.UpsertCrossChannel(ctx, coins); err != nil {
			return err
		}
	}
	return nil
}

// Status is the scheduler's contribution to /status.
type Status struct {
	Interval      time.Duration `json:"interval"`
	RetryInterval time.Duration `json:"retry_interval"`
}

// Status reports the configured intervals.
func (s *Scheduler) Status() Status {
	return Status{Interval: s.interval, RetryInterval: s.retryInterval}
}
