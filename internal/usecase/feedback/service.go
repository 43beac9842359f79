package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/metrics"
)

// DefaultMinTenants is the privacy floor for cross-tenant statistics.
const DefaultMinTenants = 5

const keyPrefix = "feedback:"

// Config configures the aggregator.
type Config struct {
	// MinTenants is the number of distinct tenants a statistic needs before
	// it is published.
	MinTenants int
}

type recordKey struct {
	fundID, lpID, userID string
}

// event is one row of the append-only aggregation log.
type event struct {
	lpID     string
	tenantID string
	voter    recordKey
	polarity domain.Polarity
}

// Service records feedback and derives privacy-gated aggregates from it.
type Service struct {
	results ResultLookup
	journal Journal
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.RWMutex
	records map[recordKey]domain.FeedbackRecord
	log     []event
}

// New creates a feedback aggregator. results and journal may be nil.
func New(results ResultLookup, journal Journal, cfg Config, logger *zap.Logger) *Service {
	if cfg.MinTenants <= 0 {
		cfg.MinTenants = DefaultMinTenants
	}
	return &Service{
		results: results,
		journal: journal,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		records: make(map[recordKey]domain.FeedbackRecord),
	}
}

// Record upserts rec. A later verdict by the same user on the same pair
// replaces the earlier one. The returned bool reports whether a new record
// was created.
func (s *Service) Record(ctx context.Context, rec domain.FeedbackRecord) (domain.FeedbackRecord, bool, error) {
	if err := rec.Validate(); err != nil {
		return domain.FeedbackRecord{}, false, fmt.Errorf("record feedback: %w", err)
	}
	if rec.Breakdown == nil && s.results != nil {
		if r, ok := s.results.Latest(rec.FundID, rec.LPID); ok {
			b := r.Breakdown
			rec.Breakdown = &b
		}
	}

	key := recordKey{fundID: rec.FundID, lpID: rec.LPID, userID: rec.UserID}
	now := s.now()

	s.mu.Lock()
	prev, exists := s.records[key]
	if exists {
		if prev.TenantID != rec.TenantID {
			s.mu.Unlock()
			return domain.FeedbackRecord{}, false, fmt.Errorf("record feedback: fund %s: %w", rec.FundID, domain.ErrNotFound)
		}
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[key] = rec
	s.log = append(s.log, event{lpID: rec.LPID, tenantID: rec.TenantID, voter: key, polarity: rec.Polarity})
	s.mu.Unlock()

	metrics.FeedbackTotal.WithLabelValues(string(rec.Polarity)).Inc()
	s.persist(ctx, key, rec)
	return rec, !exists, nil
}

func (s *Service) persist(ctx context.Context, key recordKey, rec domain.FeedbackRecord) {
	if s.journal == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("Failed to encode feedback", zap.Error(err))
		return
	}
	k := keyPrefix + key.fundID + ":" + key.lpID + ":" + key.userID
	if err := s.journal.Set(ctx, k, data); err != nil {
		s.logger.Warn("Failed to persist feedback",
			zap.String("fund_id", key.fundID),
			zap.String("lp_id", key.lpID),
			zap.Error(err),
		)
	}
}

// List returns the tenant's feedback on a fund ordered by LP then user.
func (s *Service) List(_ context.Context, tenant, fundID string) []domain.FeedbackRecord {
	s.mu.RLock()
	out := make([]domain.FeedbackRecord, 0)
	for k, r := range s.records {
		if k.fundID == fundID && r.TenantID == tenant {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LPID != out[j].LPID {
			return out[i].LPID < out[j].LPID
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// LPResponseRate is the share of positive verdicts on an LP across all
// tenants. Only each voter's latest verdict counts. The value is withheld
// until MinTenants distinct tenants have contributed.
func (s *Service) LPResponseRate(lpID string) domain.Statistic {
	s.mu.RLock()
	latest := make(map[recordKey]event)
	for _, e := range s.log {
		if e.lpID == lpID {
			latest[e.voter] = e
		}
	}
	s.mu.RUnlock()

	return publish("lp_response_rate:"+lpID, latest, s.cfg.MinTenants)
}

// publish is a pure function of the folded log and the privacy floor.
func publish(key string, latest map[recordKey]event, minTenants int) domain.Statistic {
	tenants := make(map[string]struct{})
	positive := 0
	for _, e := range latest {
		tenants[e.tenantID] = struct{}{}
		if e.polarity == domain.PolarityPositive {
			positive++
		}
	}
	if len(tenants) < minTenants || len(latest) == 0 {
		// counts below the floor would reveal single-tenant activity
		return domain.Statistic{Key: key}
	}
	return domain.Statistic{
		Key:          key,
		Value:        float64(positive) / float64(len(latest)),
		Samples:      len(latest),
		Contributors: len(tenants),
		Published:    true,
	}
}

// SuggestWeights nudges base toward the factors whose raw scores separate the
// tenant's positive verdicts from its negative ones. lr scales the step; the
// result is renormalized. Without both polarities base is
// returned unchanged.
func (s *Service) SuggestWeights(_ context.Context, tenant string, base domain.Weights, lr float64) (domain.Weights, error) {
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("suggest weights: %w", err)
	}
	if lr <= 0 || lr > 1 {
		return nil, domain.Validationf("learning rate %v outside (0,1]", lr)
	}

	pos := make([]float64, len(domain.Factors))
	neg := make([]float64, len(domain.Factors))
	var nPos, nNeg int
	s.mu.RLock()
	for _, r := range s.records {
		if r.TenantID != tenant || r.Breakdown == nil {
			continue
		}
		for i, f := range domain.Factors {
			raw := r.Breakdown.Raw(f)
			if r.Polarity == domain.PolarityPositive {
				pos[i] += raw
			} else {
				neg[i] += raw
			}
		}
		if r.Polarity == domain.PolarityPositive {
			nPos++
		} else {
			nNeg++
		}
	}
	s.mu.RUnlock()

	if nPos == 0 || nNeg == 0 {
		return base.Clone(), nil
	}

	out := make(domain.Weights, len(domain.Factors))
	for i, f := range domain.Factors {
		gap := (pos[i]/float64(nPos) - neg[i]/float64(nNeg)) / 100
		out[f] = max(0, base[f]+lr*gap)
	}
	return out.Normalize(), nil
}
