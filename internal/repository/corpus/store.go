package corpus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// Change is one record transition. Old is nil for inserts.
type Change struct {
	Old *domain.LPProfile
	New domain.LPProfile
}

// ChangeSet describes a published corpus version.
type ChangeSet struct {
	Version  uint64
	Changes  []Change
	Material bool
}

// Rejected is an import record skipped as a data-quality defect.
type Rejected struct {
	Index  int    `json:"index"`
	LPID   string `json:"lp_id,omitempty"`
	Reason string `json:"reason"`
}

// ImportReport summarizes a bulk import.
type ImportReport struct {
	Version   uint64     `json:"version"`
	Inserted  int        `json:"inserted"`
	Updated   int        `json:"updated"`
	Unchanged int        `json:"unchanged"`
	Rejected  []Rejected `json:"rejected,omitempty"`
}

// Store holds the current corpus snapshot. Readers never lock; writers are
// serialized and publish a fresh snapshot (copy-on-write).
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// New creates an empty corpus at version 0.
func New() *Store {
	s := &Store{now: time.Now}
	s.current.Store(newSnapshot(0, nil, s.now()))
	return s
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Import applies records from the data-management collaborator. Records are
// authoritative: versions are assigned by the store. Malformed records are
// rejected individually and never abort the import.
func (s *Store) Import(_ context.Context, records []domain.LPProfile) (ImportReport, ChangeSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	work := s.mutable(cur)
	var report ImportReport
	var cs ChangeSet

	seen := make(map[string]bool, len(records))
	for i := range records {
		rec := records[i]
		if err := rec.Validate(); err != nil {
			report.Rejected = append(report.Rejected, Rejected{Index: i, LPID: rec.ID, Reason: err.Error()})
			continue
		}
		if seen[rec.ID] {
			report.Rejected = append(report.Rejected, Rejected{
				Index: i, LPID: rec.ID, Reason: fmt.Sprintf("%s: duplicate id in batch", domain.ErrDataQuality),
			})
			continue
		}
		seen[rec.ID] = true

		old, exists := work[rec.ID]
		switch {
		case !exists:
			rec.Version = 1
			report.Inserted++
			cs.Changes = append(cs.Changes, Change{New: rec})
			cs.Material = true
		case old.MaterialEqual(&rec) && old.Name == rec.Name && old.DataQuality == rec.DataQuality:
			report.Unchanged++
			continue
		default:
			rec.Version = old.Version + 1
			report.Updated++
			prev := old
			cs.Changes = append(cs.Changes, Change{Old: &prev, New: rec})
			if !old.MaterialEqual(&rec) {
				cs.Material = true
			}
		}
		work[rec.ID] = rec
	}

	cs.Version = cur.Version()
	if len(cs.Changes) > 0 {
		cs.Version = s.publish(cur, work)
	}
	report.Version = cs.Version
	return report, cs
}

// Upsert writes a single record under optimistic concurrency. expectedVersion
// must equal the stored version (0 for a new record).
func (s *Store) Upsert(_ context.Context, rec domain.LPProfile, expectedVersion int) (domain.LPProfile, ChangeSet, error) {
	if err := rec.Validate(); err != nil {
		return domain.LPProfile{}, ChangeSet{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	old, exists := cur.Get(rec.ID)
	current := 0
	if exists {
		current = old.Version
	}
	if expectedVersion != current {
		return domain.LPProfile{}, ChangeSet{}, domain.NewConflict(current)
	}

	work := s.mutable(cur)
	rec.Version = current + 1
	work[rec.ID] = rec

	cs := ChangeSet{Changes: []Change{{New: rec}}, Material: true}
	if exists {
		prev := *old
		cs.Changes[0].Old = &prev
		cs.Material = !prev.MaterialEqual(&rec)
	}
	cs.Version = s.publish(cur, work)
	return rec, cs, nil
}

// Delete marks a record deleted under optimistic concurrency.
func (s *Store) Delete(ctx context.Context, id string, expectedVersion int) (ChangeSet, error) {
	cur := s.Snapshot()
	old, ok := cur.Get(id)
	if !ok {
		return ChangeSet{}, fmt.Errorf("lp %s: %w", id, domain.ErrNotFound)
	}
	rec := *old
	rec.Status = domain.LPDeleted
	_, cs, err := s.Upsert(ctx, rec, expectedVersion)
	return cs, err
}

func (s *Store) mutable(cur *Snapshot) map[string]domain.LPProfile {
	work := make(map[string]domain.LPProfile, cur.Len())
	for i := 0; i < cur.Len(); i++ {
		lp := cur.At(i)
		work[lp.ID] = *lp
	}
	return work
}

func (s *Store) publish(cur *Snapshot, work map[string]domain.LPProfile) uint64 {
	lps := make([]domain.LPProfile, 0, len(work))
	for _, lp := range work {
		lps = append(lps, lp)
	}
	sort.Slice(lps, func(i, j int) bool { return lps[i].ID < lps[j].ID })

	version := cur.Version() + 1
	s.current.Store(newSnapshot(version, lps, s.now()))
	return version
}
