package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/andresmejia3/watchlist/internal/types"
	"gocv.io/x/gocv"
)

var (
	green = color.RGBA{G: 255, A: 255}
	red   = color.RGBA{R: 255, A: 255}
	amber = color.RGBA{R: 255, G: 191, A: 255}
)

// Window shows annotated frames in an OpenCV highgui window.
type Window struct {
	win *gocv.Window
}

// NewWindow opens a preview window with the given title.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Render implements pipeline.Display.
func (w *Window) Render(_ context.Context, frame types.Frame, overlays []types.Overlay) error {
	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("decode frame %d: %w", frame.Index, err)
	}
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("decode frame %d: empty image", frame.Index)
	}

	for _, o := range overlays {
		box := image.Rect(o.Box.Left, o.Box.Top, o.Box.Right, o.Box.Bottom)
		boxColor := amber
		if o.Confirmed {
			boxColor = green
		}
		gocv.Rectangle(&img, box, boxColor, 2)
		gocv.PutText(&img, o.Label, image.Pt(o.Box.Left, o.Box.Bottom+20), gocv.FontHersheyDuplex, 0.5, red, 1)
	}

	w.win.IMShow(img)
	w.win.WaitKey(1)
	return nil
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}
