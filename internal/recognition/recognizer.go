package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Detection is one face found in a frame.
type Detection struct {
	Name     string    `json:"name"`
	Distance float64   `json:"distance"`
	BBox     []float64 `json:"bbox,omitempty"`
}

// Recognizer names the faces in a frame. Faces without a confident match are
// reported as constants.UnknownPerson.
type Recognizer interface {
	Recognize(ctx context.Context, frame []byte) ([]Detection, error)
}

// GalleryRecognizer matches detected faces against a gallery index.
type GalleryRecognizer struct {
	detector  FaceDetector
	index     *Index
	threshold float64
	maxSize   int
}

// NewGalleryRecognizer creates a recognizer. Frames are downscaled to
// maxSize before detection; matches farther than threshold are Unknown.
func NewGalleryRecognizer(detector FaceDetector, index *Index, threshold float64, maxSize int) *GalleryRecognizer {
	if threshold <= 0 {
		threshold = constants.DefaultDistanceThreshold
	}
	return &GalleryRecognizer{
		detector:  detector,
		index:     index,
		threshold: threshold,
		maxSize:   maxSize,
	}
}

// Recognize detects faces in frame and names each of them.
func (r *GalleryRecognizer) Recognize(ctx context.Context, frame []byte) ([]Detection, error) {
	if r.maxSize > 0 {
		resized, err := ResizeImage(frame, r.maxSize)
		if err != nil {
			return nil, err
		}
		frame = resized
	}

	resp, err := r.detector.DetectFaces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	detections := make([]Detection, 0, len(resp.Faces))
	for _, face := range suppressOverlaps(resp.Faces) {
		d := Detection{Name: constants.UnknownPerson, Distance: 2, BBox: face.BBox}
		sample, dist, err := r.index.Nearest(face.Embedding)
		switch {
		case errors.Is(err, ErrDimensionMismatch):
			slog.Warn("face embedding does not match the gallery, rebuild it", "error", err)
		case err == nil:
			d.Distance = dist
			if dist <= r.threshold {
				d.Name = sample.Person
			}
		}
		detections = append(detections, d)
	}
	return detections, nil
}
