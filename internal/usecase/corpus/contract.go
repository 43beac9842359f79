package corpus

import (
	"context"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	corpusrepo "github.com/kailas-cloud/fundmatch/internal/repository/corpus"
)

// Repository defines the storage contract for the LP corpus.
type Repository interface {
	Snapshot() *corpusrepo.Snapshot
	Import(ctx context.Context, records []domain.LPProfile) (corpusrepo.ImportReport, corpusrepo.ChangeSet)
	Upsert(ctx context.Context, rec domain.LPProfile, expectedVersion int) (domain.LPProfile, corpusrepo.ChangeSet, error)
	Delete(ctx context.Context, id string, expectedVersion int) (corpusrepo.ChangeSet, error)
}

// ChangeListener reacts to published corpus versions.
type ChangeListener interface {
	CorpusChanged(version uint64, material bool)
}

// ReverseIndex recomputes LP-perspective lists.
type ReverseIndex interface {
	RebuildLP(ctx context.Context, lpID string) (int, error)
}

// EmbeddingInvalidator drops the cached embedding of a text.
type EmbeddingInvalidator interface {
	Invalidate(ctx context.Context, text string)
}
