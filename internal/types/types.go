package types

import "time"

// Unknown is the identity reported for a face that matched nobody in the gallery.
const Unknown = "Unknown"

// Frame is a single captured video frame, JPEG encoded.
type Frame struct {
	Index    int
	Data     []byte
	Captured time.Time
}

// BoundingBox is a face location in pixel coordinates, in the
// [top, right, bottom, left] order used by the face engines.
type BoundingBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Width of the box in pixels.
func (b BoundingBox) Width() int { return b.Right - b.Left }

// Height of the box in pixels.
func (b BoundingBox) Height() int { return b.Bottom - b.Top }

// Area of the box in square pixels.
func (b BoundingBox) Area() int { return b.Width() * b.Height() }

// DetectedFace is one face found in a frame together with its encoding.
type DetectedFace struct {
	Box     BoundingBox
	Feature []float32
}

// MatchResult is the outcome of comparing a DetectedFace against the gallery.
type MatchResult struct {
	Identity   string
	Distance   float64
	Confidence float64
	Matched    bool
}

// Overlay is a labelled box drawn on top of a rendered frame.
type Overlay struct {
	Box       BoundingBox
	Label     string
	Confirmed bool
}

// Profile is a criminal record as stored in the people table.
type Profile struct {
	ID          int
	Name        string
	Crime       string
	Nationality string
}

// Sighting is one row of the results table: a confirmed match and its record.
type Sighting struct {
	Profile    Profile
	Confidence float64
	FrameIndex int
	Time       time.Time
}
