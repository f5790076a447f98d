package recognition

import "sort"

// overlapIoU is the intersection-over-union above which two detections are
// taken to be the same face.
const overlapIoU = 0.6

// IoU returns the intersection over union of two [x1, y1, x2, y2] boxes.
func IoU(a, b []float64) float64 {
	if len(a) != 4 || len(b) != 4 {
		return 0
	}

	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])
	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	inter := (x2 - x1) * (y2 - y1)
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// suppressOverlaps drops detections whose box overlaps a higher scoring one,
// so a face reported twice is only matched once. Faces without a box are kept.
// The result keeps the input order.
func suppressOverlaps(faces []FaceDetection) []FaceDetection {
	if len(faces) < 2 {
		return faces
	}

	order := make([]int, len(faces))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return faces[order[a]].DetScore > faces[order[b]].DetScore })

	dropped := make([]bool, len(faces))
	for n, i := range order {
		if dropped[i] || len(faces[i].BBox) != 4 {
			continue
		}
		for _, j := range order[n+1:] {
			if !dropped[j] && IoU(faces[i].BBox, faces[j].BBox) > overlapIoU {
				dropped[j] = true
			}
		}
	}

	kept := make([]FaceDetection, 0, len(faces))
	for i, f := range faces {
		if !dropped[i] {
			kept = append(kept, f)
		}
	}
	return kept
}
