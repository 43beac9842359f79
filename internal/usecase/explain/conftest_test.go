package explain

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

type mockGenerator struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
	delay time.Duration
}

func (m *mockGenerator) Generate(ctx context.Context, match domain.MatchResult) (string, error) {
	m.mu.Lock()
	m.calls++
	text, err, delay := m.text, m.err, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if text == "" {
		text = "Strong fit for " + match.LPID
	}
	return text, nil
}

func (m *mockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockGenerator) set(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text, m.err = text, err
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService(gen Generator, cfg Config) (*Service, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(gen, cfg, zap.NewNop())
	s.now = clock.Now
	return s, clock
}

func testMatch(lpID string, version uint64) domain.MatchResult {
	return domain.MatchResult{FundID: "fund-1", LPID: lpID, TotalScore: 72, CorpusVersion: version}
}
