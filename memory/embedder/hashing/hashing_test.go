package hashing_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-graph/memory/embedder/hashing"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbed_DeterministicAndNormalized(t *testing.T) {
	e := hashing.New(0)
	ctx := context.Background()
	a, err := e.Embed(ctx, "My name is Shibin")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "My name is Shibin")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, hashing.DefaultDimensions)
	assert.InDelta(t, 1.0, math.Sqrt(cosine(a, a)), 1e-5)
}

func TestEmbed_SharedWordsAreCloser(t *testing.T) {
	e := hashing.New(256)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "what is my name?")
	near, _ := e.Embed(ctx, "My name is Shibin")
	far, _ := e.Embed(ctx, "weather forecast for Munich tomorrow")
	assert.Greater(t, cosine(q, near), cosine(q, far))
}

func TestEmbed_EmptyText(t *testing.T) {
	v, err := hashing.New(8).Embed(context.Background(), "")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cosine(v, v), 1e-6)
}
