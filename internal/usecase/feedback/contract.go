package feedback

import (
	"context"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// ResultLookup finds the published score breakdown of a pair.
type ResultLookup interface {
	Latest(fundID, lpID string) (domain.MatchResult, bool)
}

// Journal persists feedback records. Satisfied by db.KVStore.
type Journal interface {
	Set(ctx context.Context, key string, value []byte) error
}
