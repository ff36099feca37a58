package trainer

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// GrayExtractor decodes an image file into an 8-bit grayscale buffer,
// optionally rescaled to Width x Height. It is the raw-mode extractor for the
// sample loader.
type GrayExtractor struct {
	Width, Height int
}

// Extract implements loader.Extractor.
func (g GrayExtractor) Extract(ctx context.Context, path string) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decode %s image: empty", format)
	}
	return ToGray(src, g.Width, g.Height), nil
}

// ToGray converts src to grayscale. When w and h are positive the result is
// scaled to that size, otherwise it keeps the source dimensions.
func ToGray(src image.Image, w, h int) *image.Gray {
	b := src.Bounds()
	if w <= 0 || h <= 0 {
		dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
