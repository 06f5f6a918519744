package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/outcome"
	"github.com/moonwatch/signalrun/internal/reputation"
	"github.com/moonwatch/signalrun/internal/sink"
)

type recordingPublisher struct {
	mu        sync.Mutex
	outcomes  int
	reps      []string
	coins     int
	publishes int
}

func (r *recordingPublisher) UpsertOutcomes(ctx context.Context, outcomes []*models.SignalOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = len(outcomes)
	r.publishes++
	return nil
}

func (r *recordingPublisher) UpsertReputations(ctx context.Context, reps []*models.ChannelReputation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reps = r.reps[:0]
	for _, rep := range reps {
		r.reps = append(r.reps, rep.ChannelName)
	}
	return nil
}

func (r *recordingPublisher) UpsertCrossChannel(ctx context.Context, coins []*models.CoinCrossChannel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coins = len(coins)
	return nil
}

func newFixture(t *testing.T) (*Scheduler, *outcome.Store, *recordingPublisher, time.Time) {
	t.Helper()
	dir := t.TempDir()
	store, err := outcome.NewStore(dir)
	require.NoError(t, err)
	tracker := outcome.NewTracker(store, nil)
	rep, err := reputation.NewEngine(filepath.Join(dir, "channels.json"), false)
	require.NoError(t, err)
	cross, err := reputation.NewCrossChannel(filepath.Join(dir, "coins.json"))
	require.NoError(t, err)
	pub := &recordingPublisher{}

	s := New(time.Minute, time.Second, store, tracker, rep, cross, []sink.Publisher{pub})
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, store, pub, now
}

func completedAt(channel, address string, entry time.Time, mult float64) *models.SignalOutcome {
	o := models.NewSignalOutcome("m-"+address, channel, address, 1.0, entry)
	o.ATHMultiplier = mult
	o.IsWinner = mult >= 2.0
	o.IsComplete = true
	o.Status = models.StatusCompleted
	return o
}

func TestCycleArchivesExpiredActives(t *testing.T) {
	s, store, _, now := newFixture(t)

	expired := models.NewSignalOutcome("m1", "alpha", "0xold", 1.0, now.Add(-35*24*time.Hour))
	expired.CurrentPrice = 3.0
	expired.CurrentMultiplier = 3.0
	expired.ATHPrice = 3.0
	expired.ATHMultiplier = 3.0
	require.NoError(t, store.PutActive(expired))

	fresh := models.NewSignalOutcome("m2", "alpha", "0xnew", 1.0, now.Add(-2*24*time.Hour))
	require.NoError(t, store.PutActive(fresh))

	require.NoError(t, s.RunCycle(context.Background()))

	active, completed := store.Counts()
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, completed)
	archived := store.CompletedSignals()[0]
	assert.Equal(t, "0xold", archived.Address)
	assert.Equal(t, models.Reason30dElapsed, archived.CompletionReason)
	assert.InDelta(t, 3.0, archived.Day30Multiplier, 1e-9, "terminal field filled from last observation")
}

func TestCycleRecomputesOnlyChangedChannels(t *testing.T) {
	s, store, pub, now := newFixture(t)

	require.NoError(t, store.AppendCompleted(completedAt("alpha", "0x1", now.Add(-40*24*time.Hour), 3.0)))
	require.NoError(t, store.AppendCompleted(completedAt("beta", "0x2", now.Add(-40*24*time.Hour), 0.5)))

	require.NoError(t, s.RunCycle(context.Background()))
	assert.ElementsMatch(t, []string{"alpha", "beta"}, pub.reps)

	// No new completions: second cycle recomputes nothing but still publishes.
	recomputed, err := s.recomputeReputations()
	require.NoError(t, err)
	assert.Equal(t, 0, recomputed)

	// A new completion for beta only triggers beta.
	require.NoError(t, store.AppendCompleted(completedAt("beta", "0x3", now.Add(-40*24*time.Hour), 2.0)))
	recomputed, err = s.recomputeReputations()
	require.NoError(t, err)
	assert.Equal(t, 1, recomputed)
}

func TestCyclePublishesFullState(t *testing.T) {
	s, store, pub, now := newFixture(t)
	require.NoError(t, store.AppendCompleted(completedAt("alpha", "0x1", now.Add(-40*24*time.Hour), 3.0)))
	require.NoError(t, store.AppendCompleted(completedAt("alpha", "0x1b", now.Add(-39*24*time.Hour), 1.5)))

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Equal(t, 2, pub.outcomes)
	assert.Equal(t, []string{"alpha"}, pub.reps)
	assert.Equal(t, 2, pub.coins)
	assert.Equal(t, 1, pub.publishes)
}

func TestCycleHonorsCancellation(t *testing.T) {
	s, store, pub, now := newFixture(t)
	require.NoError(t, store.AppendCompleted(completedAt("alpha", "0x1", now.Add(-40*24*time.Hour), 3.0)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, pub.publishes, "publish step never reached after cancellation")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s, _, _, _ := newFixture(t)
	s.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
