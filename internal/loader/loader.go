// Package loader reads a directory of labelled face images named
// <prefix>.<identityId>.<ext> into index-aligned identities and samples.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrBadFilename marks a file that does not follow <prefix>.<id>.<ext>.
	ErrBadFilename = errors.New("filename does not match <prefix>.<id>.<ext>")
	// ErrNoFace marks an image in which the extractor found no face.
	ErrNoFace = errors.New("no face detected")
)

// Outcome classifies what happened to a single file.
type Outcome int

const (
	Loaded Outcome = iota
	Skipped
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Loaded:
		return "loaded"
	case Skipped:
		return "skipped"
	case Fatal:
		return "fatal"
	}
	return "outcome(" + strconv.Itoa(int(o)) + ")"
}

type fatalError struct{ err error }

func (f fatalError) Error() string { return f.err.Error() }
func (f fatalError) Unwrap() error { return f.err }

// AsFatal wraps err so that Load stops instead of skipping the file.
func AsFatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err: err}
}

// IsFatal reports whether err was marked with AsFatal.
func IsFatal(err error) bool {
	var f fatalError
	return errors.As(err, &f)
}

// Extractor turns one image file into a sample (an encoding, a pixel buffer...).
type Extractor[T any] interface {
	Extract(ctx context.Context, path string) (T, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc[T any] func(ctx context.Context, path string) (T, error)

// Extract calls f.
func (f ExtractorFunc[T]) Extract(ctx context.Context, path string) (T, error) {
	return f(ctx, path)
}

// Skip records a file that was left out and why.
type Skip struct {
	File string
	Err  error
}

// Result holds the loaded samples. Identities[i] labels Samples[i].
type Result[T any] struct {
	Identities []string
	Samples    []T
	Skipped    []Skip
}

// Len returns the number of loaded samples.
func (r *Result[T]) Len() int { return len(r.Samples) }

// DistinctIdentities counts the distinct labels among the loaded samples.
func (r *Result[T]) DistinctIdentities() int {
	seen := make(map[string]struct{}, len(r.Identities))
	for _, id := range r.Identities {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// Progress is called once per regular file with its outcome.
type Progress func(file string, outcome Outcome)

type options struct {
	logger   *slog.Logger
	progress Progress
}

// Option configures Load.
type Option func(*options)

// WithLogger sets the logger used for per-file diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProgress registers a per-file callback.
func WithProgress(p Progress) Option {
	return func(o *options) { o.progress = p }
}

// ParseIdentity extracts the identity id from a file name: the filename without
// its extension is split on '.', and token 1 must be a non-negative integer.
func ParseIdentity(filename string) (string, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, ".")
	if len(parts) < 2 || parts[1] == "" {
		return "", fmt.Errorf("%s: %w", base, ErrBadFilename)
	}
	id := parts[1]
	if n, err := strconv.Atoi(id); err != nil || n < 0 {
		return "", fmt.Errorf("%s: identity %q is not a record id: %w", base, id, ErrBadFilename)
	}
	return id, nil
}

// CountFiles returns the number of regular files Load would visit in dir.
func CountFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

// Load visits every regular file in dir in name order. Files with a bad name,
// no face, or an unreadable image are skipped and logged; Load only fails when
// the directory cannot be read, the context is cancelled, or the extractor
// reports an AsFatal error.
func Load[T any](ctx context.Context, dir string, ex Extractor[T], opts ...Option) (*Result[T], error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sample directory: %w", err)
	}

	res := &Result[T]{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := e.Name()
		outcome, err := loadOne(ctx, dir, name, ex, res)
		if o.progress != nil {
			o.progress(name, outcome)
		}
		switch outcome {
		case Fatal:
			return nil, fmt.Errorf("load %s: %w", name, err)
		case Skipped:
			o.logger.Warn("skipping sample", "file", name, "err", err)
			res.Skipped = append(res.Skipped, Skip{File: name, Err: err})
		}
	}

	if len(res.Skipped) > 0 {
		o.logger.Warn("samples skipped", "dir", dir, "skipped", len(res.Skipped), "loaded", res.Len())
	}
	return res, nil
}

func loadOne[T any](ctx context.Context, dir, name string, ex Extractor[T], res *Result[T]) (Outcome, error) {
	id, err := ParseIdentity(name)
	if err != nil {
		return Skipped, err
	}
	sample, err := ex.Extract(ctx, filepath.Join(dir, name))
	if err != nil {
		if IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Fatal, err
		}
		return Skipped, err
	}
	res.Identities = append(res.Identities, id)
	res.Samples = append(res.Samples, sample)
	return Loaded, nil
}
