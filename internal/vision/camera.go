// Package vision holds the OpenCV-backed collaborators: camera capture, the
// preview window and the LBPH recognizer. Everything here needs cgo and an
// OpenCV installation with the contrib modules.
package vision

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/andresmejia3/watchlist/internal/types"
	"github.com/andresmejia3/watchlist/internal/utils"
	"gocv.io/x/gocv"
)

// Camera reads frames from a capture device or stream through OpenCV.
type Camera struct {
	vid   *gocv.VideoCapture
	img   gocv.Mat
	index int

	// file is set for local video files, which end instead of stalling.
	file     bool
	done     chan struct{}
	doneOnce sync.Once
}

// OpenCamera opens source, either a device index ("0") or a file/stream URL.
// It fails if the source cannot be opened.
func OpenCamera(source string) (*Camera, error) {
	var device interface{} = source
	if n, err := strconv.Atoi(source); err == nil {
		device = n
	}
	vid, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("unable to open video source %q: %w", source, err)
	}
	if !vid.IsOpened() {
		vid.Close()
		return nil, fmt.Errorf("unable to open video source %q", source)
	}
	// Keep only the newest frame in the driver buffer
	vid.Set(gocv.VideoCaptureBufferSize, 1)
	return &Camera{vid: vid, img: gocv.NewMat(), file: utils.IsVideoFile(source), done: make(chan struct{})}, nil
}

// Read implements pipeline.Source. The frame is re-encoded to JPEG.
func (c *Camera) Read() (types.Frame, bool) {
	if ok := c.vid.Read(&c.img); !ok || c.img.Empty() {
		if c.file {
			c.doneOnce.Do(func() { close(c.done) })
		}
		return types.Frame{}, false
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, c.img)
	if err != nil {
		return types.Frame{}, false
	}
	defer buf.Close()

	c.index++
	return types.Frame{
		Index:    c.index,
		Data:     append([]byte(nil), buf.GetBytes()...),
		Captured: time.Now(),
	}, true
}

// Done is closed once a video file has been read to the end. It never closes
// for devices and streams.
func (c *Camera) Done() <-chan struct{} { return c.done }

// Close releases the capture device.
func (c *Camera) Close() error {
	c.img.Close()
	return c.vid.Close()
}
