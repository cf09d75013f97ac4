package embedding_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/studybuddy/llm/embedding"
	"github.com/BaSui01/studybuddy/testutil"
)

// countingProvider 记录调用次数的嵌入提供者
type countingProvider struct {
	inner embedding.Provider
	calls int
}

func (c *countingProvider) Name() string    { return c.inner.Name() }
func (c *countingProvider) Dimensions() int { return c.inner.Dimensions() }

func (c *countingProvider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	c.calls++
	return c.inner.EmbedQuery(ctx, text)
}

func (c *countingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	c.calls++
	return c.inner.EmbedDocuments(ctx, texts)
}

func newTestCache(t *testing.T) (*embedding.CachedProvider, *countingProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	counting := &countingProvider{inner: embedding.NewLocalProvider(16)}
	cached := embedding.NewCachedProviderWithClient(counting, client, time.Hour, "test-model", nil)
	return cached, counting, mr
}

func TestCachedProvider_QueryCacheHit(t *testing.T) {
	ctx := testutil.TestContext(t)
	cached, counting, _ := newTestCache(t)

	first, err := cached.EmbedQuery(ctx, "what is paging")
	require.NoError(t, err)
	second, err := cached.EmbedQuery(ctx, "what is paging")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, counting.calls, "second query must be served from cache")
}

func TestCachedProvider_BatchOnlyEmbedsMisses(t *testing.T) {
	ctx := testutil.TestContext(t)
	cached, counting, _ := newTestCache(t)

	_, err := cached.EmbedQuery(ctx, "alpha")
	require.NoError(t, err)

	vectors, err := cached.EmbedDocuments(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	// alpha 命中缓存，只有 beta 触发一次底层调用
	assert.Equal(t, 2, counting.calls)

	direct, err := embedding.NewLocalProvider(16).EmbedQuery(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, direct, vectors[0])
}

func TestCachedProvider_RedisDownFallsThrough(t *testing.T) {
	ctx := testutil.TestContext(t)
	cached, counting, mr := newTestCache(t)

	mr.Close()

	vec, err := cached.EmbedQuery(ctx, "still works")
	require.NoError(t, err)
	assert.Len(t, vec, 16)
	assert.Equal(t, 1, counting.calls)
}

func TestCachedProvider_TTLExpiry(t *testing.T) {
	ctx := testutil.TestContext(t)
	cached, counting, mr := newTestCache(t)

	_, err := cached.EmbedQuery(ctx, "expiring")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = cached.EmbedQuery(ctx, "expiring")
	require.NoError(t, err)
	assert.Equal(t, 2, counting.calls, "expired entry must be recomputed")
}

// recordingCacheMetrics 记录命中/未命中次数
type recordingCacheMetrics struct {
	hits, misses int
}

func (r *recordingCacheMetrics) ObserveCacheLookup(hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func TestCachedProvider_ReportsHitAndMissMetrics(t *testing.T) {
	ctx := testutil.TestContext(t)
	cached, _, _ := newTestCache(t)
	rec := &recordingCacheMetrics{}
	cached.WithMetrics(rec)

	_, err := cached.EmbedQuery(ctx, "what is paging")
	require.NoError(t, err)
	_, err = cached.EmbedQuery(ctx, "what is paging")
	require.NoError(t, err)

	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, 1, rec.hits)
}
