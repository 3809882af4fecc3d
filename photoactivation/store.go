package photoactivation

import "sync"

// Snapshot is a point in time copy of the configuration record
type Snapshot map[string]interface{}

// Lookup satisfies Record
func (s Snapshot) Lookup(key string) (interface{}, bool) {
	v, ok := s[key]
	return v, ok
}

// Source provides consistent snapshots of a configuration record
type Source interface {
	Snapshot() Snapshot
}

// Store is the configuration record shared between whoever edits the
// photoactivation settings and the sequencer.  Writers may update it at any
// time; a run reads it exactly once through Snapshot.
type Store struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewStore returns a store seeded with a copy of seed, which may be nil
func NewStore(seed map[string]interface{}) *Store {
	s := &Store{values: make(map[string]interface{}, len(seed))}
	for k, v := range seed {
		s.values[k] = v
	}
	return s
}

// Set sets one key
func (s *Store) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Merge sets several keys at once; readers see all of them or none
func (s *Store) Merge(values map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
}

// Delete removes a key
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Lookup satisfies Record.  Prefer Snapshot when reading more than one key.
func (s *Store) Lookup(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Mark sets the stimulation location, in microns from the image center
func (s *Store) Mark(x, y float64) {
	s.Merge(map[string]interface{}{KeyLocationX: x, KeyLocationY: y})
}

// Snapshot returns a copy of the record
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Snapshot, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// DefaultRecord returns the settings a fresh photoactivation panel starts with
func DefaultRecord() map[string]interface{} {
	return map[string]interface{}{
		KeyXPinout:                "PCIE6738/ao0",
		KeyYPinout:                "PCIE6738/ao1",
		KeyLaserPortSwitcher:      "PCIE6738/port0/line0",
		KeyXScalingFactor:         0.05,
		KeyYScalingFactor:         0.05,
		KeyLaserPower:             10.,
		KeyDuration:               10,
		KeyPattern:                Point.String(),
		KeyWavelength:             488,
		KeyLocationX:              0.,
		KeyLocationY:              0.,
		KeyPhotoactivationTrigger: "PCIE6738/port0/line1",
		KeyPhotoactivationSource:  "/PCIE6738/PFI4",
	}
}
