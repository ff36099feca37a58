package matcher

import (
	"math"
	"testing"

	"github.com/andresmejia3/watchlist/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// elseBranch is the at-or-below-threshold formula written out longhand.
func elseBranch(d, t float64) float64 {
	linear := 1.0 - d/(t*2.0)
	return linear + (1.0-linear)*math.Pow((linear-0.5)*2, 0.2)
}

func TestConfidence_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		d    float64
		want float64
	}{
		{"Identical faces", 0.0, 1.0},
		{"Half the threshold", 0.3, 0.9676376},
		{"At threshold", 0.6, 0.5},
		{"Just over threshold", 0.7, 0.375},
		{"Far away", 0.9, 0.125},
		{"Distance one", 1.0, 0.0},
		{"Beyond one clamps to zero", 1.4, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.d, DefaultThreshold), 1e-6)
		})
	}
}

func TestConfidence_MonotonicBelowThreshold(t *testing.T) {
	prev := Confidence(0, DefaultThreshold)
	for i := 1; i <= 600; i++ {
		d := float64(i) / 1000
		got := Confidence(d, DefaultThreshold)
		require.LessOrEqualf(t, got, prev+1e-12, "confidence rose between d=%.3f and d=%.3f", d-0.001, d)
		require.False(t, math.IsNaN(got))
		prev = got
	}
}

func TestConfidence_ContinuousAtThreshold(t *testing.T) {
	const eps = 1e-9
	at := Confidence(DefaultThreshold, DefaultThreshold)
	above := Confidence(DefaultThreshold+eps, DefaultThreshold)
	assert.InDelta(t, at, above, 1e-6)
}

func TestConfidence_ElseBranchMatchesFormula(t *testing.T) {
	for _, d := range []float64{0.05, 0.2, 0.3, 0.45, 0.59} {
		assert.InDelta(t, elseBranch(d, DefaultThreshold), Confidence(d, DefaultThreshold), 1e-12)
	}
}

func TestConfidence_NumericEdges(t *testing.T) {
	assert.Equal(t, 0.0, Confidence(math.NaN(), DefaultThreshold))
	assert.Equal(t, 1.0, Confidence(-0.5, DefaultThreshold))
	assert.Equal(t, 0.0, Confidence(0.3, 0))
	assert.Equal(t, 0.0, Confidence(0.3, 1))
}

func TestMatch_SingleSample(t *testing.T) {
	g, err := NewGallery([]string{"7"}, [][]float32{{0, 0}})
	require.NoError(t, err)
	m := New(g)

	near := m.Match([]float32{0.3, 0})
	assert.Equal(t, "7", near.Identity)
	assert.True(t, near.Matched)
	assert.InDelta(t, elseBranch(0.3, DefaultThreshold), near.Confidence, 1e-6)
	assert.True(t, m.Confirmed(near))

	far := m.Match([]float32{0.9, 0})
	assert.Equal(t, types.Unknown, far.Identity)
	assert.False(t, far.Matched)
	assert.False(t, m.Confirmed(far))
}

func TestMatch_EmptyGallery(t *testing.T) {
	for _, g := range []*Gallery{nil, mustGallery(t, nil, nil)} {
		res := New(g).Match([]float32{1, 2, 3})
		assert.Equal(t, types.Unknown, res.Identity)
		assert.Equal(t, 0.0, res.Confidence)
		assert.False(t, res.Matched)
	}
}

func TestMatch_TiePicksFirst(t *testing.T) {
	g := mustGallery(t, []string{"1", "2", "3"}, [][]float32{{0.2, 0}, {-0.2, 0}, {0, 0.5}})
	res := New(g).Match([]float32{0, 0})
	assert.Equal(t, "1", res.Identity)
}

func TestMatch_PicksClosest(t *testing.T) {
	g := mustGallery(t, []string{"1", "2"}, [][]float32{{0.5, 0}, {0.1, 0}})
	res := New(g).Match([]float32{0, 0})
	assert.Equal(t, "2", res.Identity)
	assert.InDelta(t, 0.1, res.Distance, 1e-6)
}

func TestMatch_ThresholdsAreIndependent(t *testing.T) {
	g := mustGallery(t, []string{"9"}, [][]float32{{0, 0}})

	// Matched under a loose distance threshold, but not confident enough to confirm.
	m := New(g, WithThreshold(0.6), WithAcceptance(0.99))
	res := m.Match([]float32{0.3, 0})
	assert.True(t, res.Matched)
	assert.False(t, m.Confirmed(res))

	// Tight distance threshold rejects the same probe outright.
	strict := New(g, WithThreshold(0.2))
	res = strict.Match([]float32{0.3, 0})
	assert.Equal(t, types.Unknown, res.Identity)
}

func TestMatch_DimensionMismatchIsUnknown(t *testing.T) {
	g := mustGallery(t, []string{"4"}, [][]float32{{0, 0, 0}})
	res := New(g).Match([]float32{0, 0})
	assert.Equal(t, types.Unknown, res.Identity)
}

func TestNewGallery_Misaligned(t *testing.T) {
	_, err := NewGallery([]string{"1", "2"}, [][]float32{{0}})
	assert.Error(t, err)
}

func TestNewGallery_Copies(t *testing.T) {
	feat := []float32{0, 0}
	g := mustGallery(t, []string{"1"}, [][]float32{feat})
	feat[0] = 10
	assert.Equal(t, "1", New(g).Match([]float32{0, 0}).Identity)
	assert.Equal(t, []string{"1"}, g.identities)
	assert.Equal(t, []float32{0, 0}, g.features[0])
}

func TestMetric(t *testing.T) {
	fn, err := Metric("cosine")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, fn([]float32{1, 0}, []float32{3, 0}), 1e-6)

	fn, err = Metric("")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, fn([]float32{0, 0}, []float32{3, 4}), 1e-6)

	_, err = Metric("manhattan")
	assert.Error(t, err)
}

func mustGallery(t *testing.T, ids []string, feats [][]float32) *Gallery {
	t.Helper()
	g, err := NewGallery(ids, feats)
	require.NoError(t, err)
	return g
}
