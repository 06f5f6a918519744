// Package outcome owns the 30-day signal lifecycle: admission of new signals,
// checkpoint updates, completion, and the two-file persistence split between
// active tracking and completed history.
package outcome

import (
	"path/filepath"
	"sync"

	"github.com/moonwatch/signalrun/internal/atomicio"
	"github.com/moonwatch/signalrun/internal/models"
)

const (
	activeFile    = "active_tracking.json"
	completedFile = "completed_history.json"
)

// Store persists signal outcomes across two JSON files under one directory:
// active signals keyed by address, completed signals as an append-only list.
// An address is tracked at most once in active, whichever channel mentioned
// it first. Archival moves a record from one file to the other in a single
// multi-file commit.
type Store struct {
	mu        sync.Mutex
	dir       string
	active    map[string]*models.SignalOutcome
	completed []*models.SignalOutcome
}

// NewStore loads both files from dir, creating empty state for whichever is
// missing or corrupt. The active map is re-keyed by each record's address on
// load, so files written under an older key scheme stay readable.
func NewStore(dir string) (*Store, error) {
	s := &Store{
		dir:    dir,
		active: make(map[string]*models.SignalOutcome),
	}
	var loaded map[string]*models.SignalOutcome
	if _, err := atomicio.ReadJSON(s.activePath(), &loaded); err != nil {
		return nil, err
	}
	for _, o := range loaded {
		if o != nil && o.Address != "" {
			s.active[o.Address] = o
		}
	}
	if _, err := atomicio.ReadJSON(s.completedPath(), &s.completed); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) activePath() string    { return filepath.Join(s.dir, activeFile) }
func (s *Store) completedPath() string { return filepath.Join(s.dir, completedFile) }

// Active returns the in-flight signal for the address, if any.
func (s *Store) Active(address string) (*models.SignalOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.active[address]
	return o, ok
}

// ActiveSignals returns a snapshot slice of all in-flight signals.
func (s *Store) ActiveSignals() []*models.SignalOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.SignalOutcome, 0, len(s.active))
	for _, o := range s.active {
		out = append(out, o)
	}
	return out
}

// CompletedSignals returns a snapshot slice of the completed history.
func (s *Store) CompletedSignals() []*models.SignalOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.SignalOutcome, len(s.completed))
	copy(out, s.completed)
	return out
}

// CompletedFor returns the completed history for one (channel, address) pair,
// oldest first.
func (s *Store) CompletedFor(channel, address string) []*models.SignalOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SignalOutcome
	for _, o := range s.completed {
		if o.ChannelName == channel && o.Address == address {
			out = append(out, o)
		}
	}
	return out
}

// PutActive upserts an in-flight signal and persists the active file.
func (s *Store) PutActive(o *models.SignalOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[o.Address] = o
	return atomicio.WriteJSONAtomic(s.activePath(), s.active)
}

// SaveActive persists the active file without mutating the map. Used after
// in-place updates of tracked signals.
func (s *Store) SaveActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicio.WriteJSONAtomic(s.activePath(), s.active)
}

// Archive moves a finished signal from active to completed and commits both
// files together. Marshal failure aborts before either file is touched.
func (s *Store) Archive(o *models.SignalOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, o.Address)
	s.completed = append(s.completed, o)
	return atomicio.Commit([]atomicio.Write{
		{Path: s.activePath(), Payload: s.active},
		{Path: s.completedPath(), Payload: s.completed},
	})
}

// AppendCompleted records a signal that never entered active tracking, such
// as a historical one-shot evaluation.
func (s *Store) AppendCompleted(o *models.SignalOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, o)
	return atomicio.WriteJSONAtomic(s.completedPath(), s.completed)
}

// Counts reports (active, completed) sizes.
func (s *Store) Counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active), len(s.completed)
}
