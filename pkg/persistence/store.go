package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hololinked-dev/hololinked-go/pkg/thing"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// State is the on-disk snapshot of persisted property values.
type State struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Things maps Thing id to property name to last written value.
	Things map[string]map[string]any `json:"things,omitempty"`
}

// Store persists property values to a JSON file. Writes go to a temp file
// followed by an atomic rename, so a crash mid-save never corrupts the
// previous snapshot.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	state  State
}

// NewStore creates a store backed by the given path. Nothing is read or
// written until Load or a value change.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger,
		state:  State{Things: make(map[string]map[string]any)},
	}
}

// Load reads the state file. A missing file is an empty state, not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("corrupt state file %s: %w", s.path, err)
	}
	if state.Things == nil {
		state.Things = make(map[string]map[string]any)
	}
	s.state = state
	return nil
}

// Restore pushes persisted values back into a Thing's storage-backed
// properties. Values are applied through the internal setter, so read-only
// properties restore too. Unknown or handler-backed properties are skipped
// with a log line.
func (s *Store) Restore(th *thing.Thing) {
	s.mu.Lock()
	values := s.state.Things[th.ID()]
	s.mu.Unlock()

	for name, value := range values {
		prop, err := th.Property(name)
		if err != nil {
			s.logger.Warn("persisted property no longer exists",
				"thing", th.ID(), "property", name)
			continue
		}
		if err := prop.SetValueInternal(value); err != nil {
			s.logger.Warn("failed to restore property value",
				"thing", th.ID(), "property", name, "err", err)
		}
	}
}

// Hook returns a value-changed hook for the given Thing that records the
// new value and saves the snapshot. Wire it with SetValueChangedHook.
func (s *Store) Hook(thingID string) thing.ValueChangedHook {
	return func(property string, value any) {
		s.mu.Lock()
		values, ok := s.state.Things[thingID]
		if !ok {
			values = make(map[string]any)
			s.state.Things[thingID] = values
		}
		values[property] = value
		err := s.saveLocked()
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("failed to persist property value",
				"thing", thingID, "property", property, "err", err)
		}
	}
}

// Save writes the current snapshot to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	s.state.Version = StateVersion
	s.state.SavedAt = time.Now()

	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Clear removes the state file and forgets all recorded values.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = State{Things: make(map[string]map[string]any)}

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
