package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// LBPH is OpenCV's local binary patterns histogram face recognizer.
type LBPH struct {
	rec *contrib.LBPHFaceRecognizer
}

// NewLBPH creates an untrained recognizer with OpenCV's default parameters.
func NewLBPH() *LBPH {
	return &LBPH{rec: contrib.NewLBPHFaceRecognizer()}
}

// Train implements trainer.Model.
func (l *LBPH) Train(samples []*image.Gray, labels []int) error {
	if len(samples) != len(labels) {
		return fmt.Errorf("%d samples for %d labels", len(samples), len(labels))
	}
	mats := make([]gocv.Mat, 0, len(samples))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	for i, s := range samples {
		m, err := gocv.ImageGrayToMatGray(s)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		mats = append(mats, m)
	}
	l.rec.Train(mats, labels)
	return nil
}

// Save implements trainer.Model. The file format is OpenCV's YAML/XML storage.
func (l *LBPH) Save(path string) error {
	l.rec.SaveFile(path)
	return nil
}
