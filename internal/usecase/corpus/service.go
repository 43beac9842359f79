package corpus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	corpusrepo "github.com/kailas-cloud/fundmatch/internal/repository/corpus"
)

// Service applies LP corpus changes and fans each published version out to
// the result cache, reverse index and embedding cache.
type Service struct {
	repo       Repository
	listener   ChangeListener
	reverse    ReverseIndex
	embeddings EmbeddingInvalidator
	logger     *zap.Logger
}

// New creates a corpus service. reverse and embeddings may be nil.
func New(
	repo Repository, listener ChangeListener, reverse ReverseIndex, embeddings EmbeddingInvalidator,
	logger *zap.Logger,
) *Service {
	return &Service{repo: repo, listener: listener, reverse: reverse, embeddings: embeddings, logger: logger}
}

// Import bulk-applies records. Malformed records are skipped and logged.
func (s *Service) Import(ctx context.Context, records []domain.LPProfile) corpusrepo.ImportReport {
	report, cs := s.repo.Import(ctx, records)
	for _, r := range report.Rejected {
		s.logger.Warn("LP record rejected",
			zap.Int("index", r.Index),
			zap.String("lp_id", r.LPID),
			zap.String("reason", r.Reason),
		)
	}
	s.propagate(ctx, cs)

	s.logger.Info("LP import applied",
		zap.Uint64("corpus_version", report.Version),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("rejected", len(report.Rejected)),
	)
	return report
}

// Get returns an LP from the current snapshot.
func (s *Service) Get(_ context.Context, id string) (domain.LPProfile, error) {
	lp, ok := s.repo.Snapshot().Get(id)
	if !ok {
		return domain.LPProfile{}, fmt.Errorf("get lp: lp %s: %w", id, domain.ErrNotFound)
	}
	return *lp, nil
}

// Version returns the current corpus version and size.
func (s *Service) Version() (uint64, int) {
	snap := s.repo.Snapshot()
	return snap.Version(), snap.Len()
}

// Upsert writes one LP if expectedVersion is still current.
func (s *Service) Upsert(ctx context.Context, rec domain.LPProfile, expectedVersion int) (domain.LPProfile, error) {
	saved, cs, err := s.repo.Upsert(ctx, rec, expectedVersion)
	if err != nil {
		return domain.LPProfile{}, fmt.Errorf("upsert lp: %w", err)
	}
	s.propagate(ctx, cs)
	return saved, nil
}

// Delete marks an LP deleted if expectedVersion is still current.
func (s *Service) Delete(ctx context.Context, id string, expectedVersion int) error {
	cs, err := s.repo.Delete(ctx, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete lp: %w", err)
	}
	s.propagate(ctx, cs)
	return nil
}

func (s *Service) propagate(ctx context.Context, cs corpusrepo.ChangeSet) {
	if len(cs.Changes) == 0 {
		return
	}
	s.listener.CorpusChanged(cs.Version, cs.Material)

	for _, c := range cs.Changes {
		if c.Old != nil && !c.Old.MaterialEqual(&c.New) {
			if s.embeddings != nil && c.Old.Mandate != "" && c.Old.Mandate != c.New.Mandate {
				s.embeddings.Invalidate(ctx, c.Old.Mandate)
			}
		}
		if s.reverse == nil || (c.Old != nil && c.Old.MaterialEqual(&c.New)) {
			continue
		}
		if _, err := s.reverse.RebuildLP(ctx, c.New.ID); err != nil {
			s.logger.Warn("Reverse index rebuild failed",
				zap.String("lp_id", c.New.ID),
				zap.Error(err),
			)
		}
	}
}
