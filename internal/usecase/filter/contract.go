package filter

import "github.com/kailas-cloud/fundmatch/internal/domain"

// Snapshot is an immutable, versioned LP corpus view.
type Snapshot interface {
	Version() uint64
	Len() int
	At(i int) *domain.LPProfile
	// Derived memoizes per-snapshot data such as the filter index.
	Derived(key any, build func() any) any
}
