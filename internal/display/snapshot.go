package display

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/andresmejia3/watchlist/internal/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	confirmedColor = color.RGBA{0, 200, 0, 255}
	unknownColor   = color.RGBA{255, 170, 0, 255}
	labelColor     = color.RGBA{255, 0, 0, 255}
)

// Snapshots saves an annotated JPEG for every frame with at least one
// confirmed face.
type Snapshots struct {
	Dir     string
	Quality int
}

// NewSnapshots creates dir if needed.
func NewSnapshots(dir string) (*Snapshots, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &Snapshots{Dir: dir, Quality: 90}, nil
}

// Render implements pipeline.Display.
func (s *Snapshots) Render(_ context.Context, frame types.Frame, overlays []types.Overlay) error {
	if !hasConfirmed(overlays) {
		return nil
	}
	src, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return fmt.Errorf("decode frame %d: %w", frame.Index, err)
	}
	img := Annotate(src, overlays)

	path := filepath.Join(s.Dir, fmt.Sprintf("frame_%06d.jpg", frame.Index))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: s.Quality}); err != nil {
		f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return f.Close()
}

func hasConfirmed(overlays []types.Overlay) bool {
	for _, o := range overlays {
		if o.Confirmed {
			return true
		}
	}
	return false
}

// Annotate copies src and draws a box and label for each overlay.
func Annotate(src image.Image, overlays []types.Overlay) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)

	for _, o := range overlays {
		c := unknownColor
		if o.Confirmed {
			c = confirmedColor
		}
		r := image.Rect(o.Box.Left, o.Box.Top, o.Box.Right, o.Box.Bottom).Intersect(b)
		if r.Empty() {
			continue
		}
		outline(dst, r, c, 2)

		d := font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(labelColor),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(r.Min.X+6, r.Max.Y-6),
		}
		d.DrawString(o.Label)
	}
	return dst
}

func outline(dst draw.Image, r image.Rectangle, c color.Color, width int) {
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), u, image.Point{}, draw.Src)
	}
}
