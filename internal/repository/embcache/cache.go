package embcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/db"
	"github.com/kailas-cloud/fundmatch/internal/domain"
)

const cacheKeyPrefix = "fundmatch:emb_cache:"

// store is the consumer interface for the persistent cache tier (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Cache is a content-addressed embedding cache. The in-process tier keeps one
// entry per content hash in a sync.Map so writes for different texts never
// contend. An optional key-value tier survives restarts.
//
// Entries produced by another model version or dimension are treated as misses
// and overwritten on the next Put.
type Cache struct {
	entries      sync.Map // content hash -> domain.Embedding
	store        store
	ttl          time.Duration
	modelVersion string
	dims         int
	cacheTotal   *prometheus.CounterVec
	logger       *zap.Logger
}

// Config holds cache settings. Store may be nil for an in-process-only cache.
type Config struct {
	Store        store
	TTL          time.Duration
	ModelVersion string
	Dimensions   int
	// CacheTotal is a counter vec with label "result" ("hit"/"miss"/"stale").
	CacheTotal *prometheus.CounterVec
	Logger     *zap.Logger
}

// New creates an embedding cache.
func New(cfg Config) *Cache {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:        cfg.Store,
		ttl:          cfg.TTL,
		modelVersion: cfg.ModelVersion,
		dims:         cfg.Dimensions,
		cacheTotal:   cfg.CacheTotal,
		logger:       logger,
	}
}

// ModelVersion returns the model version entries must carry to be served.
func (c *Cache) ModelVersion() string { return c.modelVersion }

// Dimensions returns the expected vector dimension (0 = any).
func (c *Cache) Dimensions() int { return c.dims }

// Get returns the current embedding for text, if cached.
func (c *Cache) Get(ctx context.Context, text string) (domain.Embedding, bool) {
	hash := domain.ContentHash(text)

	if v, ok := c.entries.Load(hash); ok {
		emb := v.(domain.Embedding)
		if emb.Current(text, c.modelVersion, c.dims) {
			c.inc("hit")
			return emb, true
		}
		c.inc("stale")
		c.entries.CompareAndDelete(hash, v)
	}

	if emb, ok := c.getFromStore(ctx, hash); ok && emb.Current(text, c.modelVersion, c.dims) {
		c.entries.Store(hash, emb)
		c.inc("hit")
		return emb, true
	}

	c.inc("miss")
	return domain.Embedding{}, false
}

// Put records a freshly produced vector for text and returns the stored embedding.
func (c *Cache) Put(ctx context.Context, text string, vec []float32) domain.Embedding {
	emb := domain.NewEmbedding(text, vec, c.modelVersion)
	c.entries.Store(emb.ContentHash, emb)
	c.putToStore(ctx, emb)
	return emb
}

// Invalidate drops the entry for exactly this text. Other entries are untouched.
func (c *Cache) Invalidate(ctx context.Context, text string) {
	hash := domain.ContentHash(text)
	c.entries.Delete(hash)
	if c.store == nil {
		return
	}
	if err := c.store.Del(ctx, cacheKeyPrefix+hash); err != nil {
		c.logger.Warn("Failed to delete cached embedding", zap.String("hash", hash), zap.Error(err))
	}
}

// Len returns the number of in-process entries.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *Cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *Cache) getFromStore(ctx context.Context, hash string) (domain.Embedding, bool) {
	if c.store == nil {
		return domain.Embedding{}, false
	}
	key := cacheKeyPrefix + hash
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return domain.Embedding{}, false
	}
	model, vec, err := decode(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return domain.Embedding{}, false
	}
	return domain.Embedding{ContentHash: hash, Vector: vec, Dimension: len(vec), ModelVersion: model}, true
}

func (c *Cache) putToStore(ctx context.Context, emb domain.Embedding) {
	if c.store == nil {
		return
	}
	key := cacheKeyPrefix + emb.ContentHash
	if err := c.store.SetWithTTL(ctx, key, encode(emb.ModelVersion, emb.Vector), c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

// encode lays out: uint16 model length | model bytes | little-endian float32s.
func encode(model string, v []float32) []byte {
	buf := make([]byte, 2+len(model)+len(v)*4)
	binary.LittleEndian.PutUint16(buf, uint16(len(model)))
	copy(buf[2:], model)
	off := 2 + len(model)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[off+i*4:], math.Float32bits(f))
	}
	return buf
}

func decode(data []byte) (string, []float32, error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("invalid embedding cache data: len=%d", len(data))
	}
	n := int(binary.LittleEndian.Uint16(data))
	if len(data) < 2+n {
		return "", nil, fmt.Errorf("invalid embedding cache data: truncated model header")
	}
	model := string(data[2 : 2+n])
	body := data[2+n:]
	if len(body) == 0 || len(body)%4 != 0 {
		return "", nil, fmt.Errorf("invalid embedding cache data: body len=%d (not multiple of 4)", len(body))
	}
	vec := make([]float32, len(body)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return model, vec, nil
}
