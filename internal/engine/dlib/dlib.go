// Package dlib detects and encodes faces in-process with dlib via go-face.
// It needs the dlib models (shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat, mmod_human_face_detector.dat)
// in the models directory.
package dlib

import (
	"context"
	"fmt"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/watchlist/internal/loader"
	"github.com/andresmejia3/watchlist/internal/types"
)

// Engine wraps a go-face recognizer. Only JPEG input is supported.
type Engine struct {
	rec *face.Recognizer
}

// New loads the dlib models from modelsDir.
func New(modelsDir string) (*Engine, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models from %s: %w", modelsDir, err)
	}
	return &Engine{rec: rec}, nil
}

// Detect implements engine.Engine.
func (e *Engine) Detect(ctx context.Context, frame types.Frame) ([]types.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := e.rec.Recognize(frame.Data)
	if err != nil {
		return nil, err
	}
	return convert(found), nil
}

// Extract implements engine.Engine.
func (e *Engine) Extract(ctx context.Context, path string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := e.rec.RecognizeFile(path)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, loader.ErrNoFace
	}
	return descriptor(found[0].Descriptor), nil
}

// Close releases the dlib models.
func (e *Engine) Close() error {
	e.rec.Close()
	return nil
}

func convert(found []face.Face) []types.DetectedFace {
	faces := make([]types.DetectedFace, 0, len(found))
	for _, f := range found {
		r := f.Rectangle
		faces = append(faces, types.DetectedFace{
			Box:     types.BoundingBox{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X},
			Feature: descriptor(f.Descriptor),
		})
	}
	return faces
}

func descriptor(d face.Descriptor) []float32 {
	return append([]float32(nil), d[:]...)
}
