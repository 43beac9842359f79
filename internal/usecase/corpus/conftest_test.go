package corpus

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	corpusrepo "github.com/kailas-cloud/fundmatch/internal/repository/corpus"
)

type changeEvent struct {
	version  uint64
	material bool
}

type mockListener struct {
	events []changeEvent
}

func (m *mockListener) CorpusChanged(version uint64, material bool) {
	m.events = append(m.events, changeEvent{version: version, material: material})
}

type mockReverse struct {
	rebuilt []string
	err     error
}

func (m *mockReverse) RebuildLP(_ context.Context, lpID string) (int, error) {
	m.rebuilt = append(m.rebuilt, lpID)
	return 0, m.err
}

type mockEmbeddings struct {
	invalidated []string
}

func (m *mockEmbeddings) Invalidate(_ context.Context, text string) {
	m.invalidated = append(m.invalidated, text)
}

var errScoring = errors.New("scoring unavailable")

type testEnv struct {
	svc        *Service
	listener   *mockListener
	reverse    *mockReverse
	embeddings *mockEmbeddings
}

func newTestEnv() *testEnv {
	env := &testEnv{listener: &mockListener{}, reverse: &mockReverse{}, embeddings: &mockEmbeddings{}}
	env.svc = New(corpusrepo.New(), env.listener, env.reverse, env.embeddings, zap.NewNop())
	return env
}

func lp(id, mandate string) domain.LPProfile {
	lo, hi := 50.0, 300.0
	return domain.LPProfile{
		ID:                   id,
		Name:                 "Pension " + id,
		StrategyPreferences:  []string{"Private Equity"},
		GeographyPreferences: []string{"US"},
		MinSize:              &lo,
		MaxSize:              &hi,
		Mandate:              mandate,
		Status:               domain.LPActive,
		DataQuality:          0.9,
	}
}
