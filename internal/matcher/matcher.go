// Package matcher compares face encodings against a gallery of known faces
// and scores how confident a match is.
package matcher

import (
	"fmt"
	"math"
	"strings"

	"github.com/andresmejia3/watchlist/internal/types"
	"github.com/coder/hnsw"
)

// DistanceFunc measures how far apart two face encodings are. Smaller is closer.
type DistanceFunc func(a, b []float32) float64

// Euclidean is the distance the dlib encoder is calibrated for (0.6 tolerance).
func Euclidean(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	return float64(hnsw.EuclideanDistance(a, b))
}

// Cosine distance, for engines that emit direction-only embeddings.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	return float64(hnsw.CosineDistance(a, b))
}

// Metric resolves a metric name from the command line or config file.
func Metric(name string) (DistanceFunc, error) {
	switch strings.ToLower(name) {
	case "", "euclidean", "l2":
		return Euclidean, nil
	case "cosine":
		return Cosine, nil
	default:
		return nil, fmt.Errorf("unknown distance metric %q (use euclidean or cosine)", name)
	}
}

// Gallery is the immutable set of known faces. identities[i] labels features[i].
type Gallery struct {
	identities []string
	features   [][]float32
}

// NewGallery copies the index-aligned identities and features into a Gallery.
func NewGallery(identities []string, features [][]float32) (*Gallery, error) {
	if len(identities) != len(features) {
		return nil, fmt.Errorf("gallery misaligned: %d identities for %d features", len(identities), len(features))
	}
	g := &Gallery{
		identities: make([]string, len(identities)),
		features:   make([][]float32, len(features)),
	}
	copy(g.identities, identities)
	for i, f := range features {
		g.features[i] = append([]float32(nil), f...)
	}
	return g, nil
}

// Len returns the number of samples in the gallery.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.identities)
}

// Matcher finds the closest gallery face for a probe and decides whether it is confirmed.
type Matcher struct {
	gallery    *Gallery
	distance   DistanceFunc
	threshold  float64
	acceptance float64
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold sets the distance at or below which the closest face is a match.
func WithThreshold(t float64) Option {
	return func(m *Matcher) { m.threshold = t }
}

// WithAcceptance sets the confidence a match must exceed to be confirmed.
func WithAcceptance(a float64) Option {
	return func(m *Matcher) { m.acceptance = a }
}

// WithDistance replaces the distance metric.
func WithDistance(fn DistanceFunc) Option {
	return func(m *Matcher) { m.distance = fn }
}

// New creates a Matcher over g. A nil gallery behaves like an empty one.
func New(g *Gallery, opts ...Option) *Matcher {
	m := &Matcher{
		gallery:    g,
		distance:   Euclidean,
		threshold:  DefaultThreshold,
		acceptance: DefaultAcceptance,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match compares probe against every gallery face. The smallest distance wins,
// the earliest gallery entry wins a tie. Faces beyond the threshold come back
// as types.Unknown, still carrying the confidence of the closest candidate.
func (m *Matcher) Match(probe []float32) types.MatchResult {
	if m.gallery.Len() == 0 {
		return types.MatchResult{Identity: types.Unknown, Distance: math.Inf(1)}
	}

	best := -1
	bestDist := math.Inf(1)
	for i, f := range m.gallery.features {
		d := m.distance(probe, f)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best == -1 {
		// Every distance was +Inf or NaN (mismatched dimensions).
		return types.MatchResult{Identity: types.Unknown, Distance: math.Inf(1)}
	}

	res := types.MatchResult{
		Identity:   types.Unknown,
		Distance:   bestDist,
		Confidence: Confidence(bestDist, m.threshold),
		Matched:    bestDist <= m.threshold,
	}
	if res.Matched {
		res.Identity = m.gallery.identities[best]
	}
	return res
}

// Confirmed reports whether r is strong enough to look up, alert on and log.
func (m *Matcher) Confirmed(r types.MatchResult) bool {
	return r.Matched && r.Confidence > m.acceptance
}
