// Package engine defines the face detector/encoder collaborator and an
// implementation that talks to an external engine process.
package engine

import (
	"context"
	"errors"

	"github.com/andresmejia3/watchlist/internal/types"
)

// ErrEngine is wrapped around failures reported by the engine itself.
var ErrEngine = errors.New("engine error")

// Engine finds faces in images and encodes them.
type Engine interface {
	// Detect returns every face in a JPEG frame with its encoding.
	Detect(ctx context.Context, frame types.Frame) ([]types.DetectedFace, error)
	// Extract encodes the first face found in an image file. It returns
	// loader.ErrNoFace when there is none.
	Extract(ctx context.Context, path string) ([]float32, error)
	Close() error
}

// Largest returns the face with the biggest bounding box.
func Largest(faces []types.DetectedFace) (types.DetectedFace, bool) {
	if len(faces) == 0 {
		return types.DetectedFace{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Box.Area() > best.Box.Area() {
			best = f
		}
	}
	return best, true
}
