package fund

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// Service handles the fund lifecycle and keeps derived state in step with
// every saved version.
type Service struct {
	repo       Repository
	results    ResultInvalidator
	reverse    ReverseIndex
	embeddings EmbeddingInvalidator
	logger     *zap.Logger
}

// New creates a fund service. reverse and embeddings may be nil.
func New(
	repo Repository, results ResultInvalidator, reverse ReverseIndex, embeddings EmbeddingInvalidator,
	logger *zap.Logger,
) *Service {
	return &Service{repo: repo, results: results, reverse: reverse, embeddings: embeddings, logger: logger}
}

// Create stores a new fund for tenant. Status defaults to draft and a
// missing ID is generated.
func (s *Service) Create(ctx context.Context, tenant string, f domain.FundProfile) (domain.FundProfile, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.TenantID = tenant
	f.Version = 0
	if f.Status == "" {
		f.Status = domain.FundDraft
	}
	return s.save(ctx, f, "create fund")
}

// Update replaces the fund if expectedVersion is still current.
func (s *Service) Update(
	ctx context.Context, tenant string, f domain.FundProfile, expectedVersion int,
) (domain.FundProfile, error) {
	if _, err := s.Get(ctx, tenant, f.ID); err != nil {
		return domain.FundProfile{}, err
	}
	f.TenantID = tenant
	f.Version = expectedVersion
	return s.save(ctx, f, "update fund")
}

// Get returns the fund if it belongs to tenant.
func (s *Service) Get(ctx context.Context, tenant, id string) (domain.FundProfile, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.FundProfile{}, fmt.Errorf("get fund: %w", err)
	}
	if f.TenantID != tenant {
		return domain.FundProfile{}, fmt.Errorf("get fund: fund %s: %w", id, domain.ErrNotFound)
	}
	return f, nil
}

// List returns the tenant's funds.
func (s *Service) List(ctx context.Context, tenant string) []domain.FundProfile {
	return s.repo.ListByTenant(ctx, tenant)
}

// Activate makes the fund matchable.
func (s *Service) Activate(ctx context.Context, tenant, id string, expectedVersion int) (domain.FundProfile, error) {
	return s.transition(ctx, tenant, id, expectedVersion, domain.FundActive)
}

// Archive withdraws the fund from matching.
func (s *Service) Archive(ctx context.Context, tenant, id string, expectedVersion int) (domain.FundProfile, error) {
	return s.transition(ctx, tenant, id, expectedVersion, domain.FundArchived)
}

func (s *Service) transition(
	ctx context.Context, tenant, id string, expectedVersion int, to domain.FundStatus,
) (domain.FundProfile, error) {
	f, err := s.Get(ctx, tenant, id)
	if err != nil {
		return domain.FundProfile{}, err
	}
	if f.Status == to {
		return domain.FundProfile{}, domain.Validationf("fund %s is already %s", id, to)
	}
	f.Status = to
	f.Version = expectedVersion
	return s.save(ctx, f, "set fund status")
}

func (s *Service) save(ctx context.Context, f domain.FundProfile, op string) (domain.FundProfile, error) {
	if err := f.ValidateShape(); err != nil {
		return domain.FundProfile{}, fmt.Errorf("%s: %w", op, err)
	}
	if f.Status == domain.FundActive {
		if err := f.ValidateMatchable(); err != nil {
			return domain.FundProfile{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	saved, prev, err := s.repo.Save(ctx, f)
	if err != nil {
		return domain.FundProfile{}, fmt.Errorf("%s: %w", op, err)
	}
	s.afterSave(ctx, saved, prev)
	return saved, nil
}

// afterSave propagates a committed version. Failures here are logged, not
// returned: the save itself has succeeded.
func (s *Service) afterSave(ctx context.Context, saved domain.FundProfile, prev *domain.FundProfile) {
	if prev != nil {
		s.results.InvalidateFund(saved.ID)
		if s.embeddings != nil && prev.Thesis != "" && prev.Thesis != saved.Thesis {
			s.embeddings.Invalidate(ctx, prev.Thesis)
		}
	}

	fields := []zap.Field{
		zap.String("fund_id", saved.ID),
		zap.String("tenant_id", saved.TenantID),
		zap.Int("version", saved.Version),
		zap.String("status", string(saved.Status)),
	}
	if s.reverse == nil {
		s.logger.Info("Fund saved", fields...)
		return
	}

	switch {
	case saved.Status == domain.FundActive:
		s.reverse.MirrorFund(ctx, saved)
		fields = append(fields, zap.Bool("reverse_mirror_scheduled", true))
	case prev != nil && prev.Status == domain.FundActive:
		s.reverse.FundWithdrawn(saved.ID)
	}
	s.logger.Info("Fund saved", fields...)
}
