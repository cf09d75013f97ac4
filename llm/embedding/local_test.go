package embedding_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/studybuddy/llm/embedding"
	"github.com/BaSui01/studybuddy/testutil"
)

func TestLocalProvider_Deterministic(t *testing.T) {
	ctx := testutil.TestContext(t)
	p := embedding.NewLocalProvider(384)

	a, err := p.EmbedQuery(ctx, "binary search tree")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "binary search tree")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 384)
	assert.Equal(t, 384, p.Dimensions())
}

func TestLocalProvider_Normalized(t *testing.T) {
	ctx := testutil.TestContext(t)
	p := embedding.NewLocalProvider(64)

	vec, err := p.EmbedQuery(ctx, "operating systems use paging for virtual memory")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestLocalProvider_EmptyTextIsZeroVector(t *testing.T) {
	ctx := testutil.TestContext(t)
	p := embedding.NewLocalProvider(16)

	vec, err := p.EmbedQuery(ctx, "")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestLocalProvider_SharedVocabularyScoresHigher(t *testing.T) {
	ctx := testutil.TestContext(t)
	p := embedding.NewLocalProvider(512)

	vecs, err := p.EmbedDocuments(ctx, []string{
		"quicksort pivot partition",
		"quicksort partitions around a pivot",
		"photosynthesis in green plants",
	})
	require.NoError(t, err)

	sim := func(a, b []float64) float64 {
		var dot float64
		for i := range a {
			dot += a[i] * b[i]
		}
		return dot // 已归一化，点积即余弦相似度
	}
	assert.Greater(t, sim(vecs[0], vecs[1]), sim(vecs[0], vecs[2]))
}

func TestLocalProvider_DefaultDimensions(t *testing.T) {
	assert.Equal(t, 384, embedding.NewLocalProvider(0).Dimensions())
}
