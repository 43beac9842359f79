package corpus

import (
	"sync"
	"time"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// Snapshot is an immutable, versioned view of the LP corpus. A job captures one
// snapshot at start and reads nothing else, so concurrent imports never mix
// pre- and post-mutation data into a ranking.
type Snapshot struct {
	version uint64
	takenAt time.Time
	lps     []domain.LPProfile // sorted by ID
	byID    map[string]int

	derivedMu sync.Mutex
	derived   map[any]*derivedEntry
}

type derivedEntry struct {
	once  sync.Once
	value any
}

func newSnapshot(version uint64, lps []domain.LPProfile, now time.Time) *Snapshot {
	byID := make(map[string]int, len(lps))
	for i := range lps {
		byID[lps[i].ID] = i
	}
	return &Snapshot{
		version: version,
		takenAt: now,
		lps:     lps,
		byID:    byID,
		derived: make(map[any]*derivedEntry),
	}
}

// Version is the corpus version this snapshot represents.
func (s *Snapshot) Version() uint64 { return s.version }

// TakenAt is when the snapshot was published.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Len returns the number of records, including deleted ones.
func (s *Snapshot) Len() int { return len(s.lps) }

// At returns the i-th record in ID order. The pointee must not be mutated.
func (s *Snapshot) At(i int) *domain.LPProfile { return &s.lps[i] }

// Get looks up a record by ID.
func (s *Snapshot) Get(id string) (*domain.LPProfile, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.lps[i], true
}

// Derived returns a value computed once per snapshot and key, e.g. a columnar
// filter index. build runs at most once even under concurrent callers.
func (s *Snapshot) Derived(key any, build func() any) any {
	s.derivedMu.Lock()
	e, ok := s.derived[key]
	if !ok {
		e = &derivedEntry{}
		s.derived[key] = e
	}
	s.derivedMu.Unlock()

	e.once.Do(func() { e.value = build() })
	return e.value
}
