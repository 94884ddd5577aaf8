// Package postprocess - decoding of raw detection output into per-image
// candidates, including confidence filtering and Non-Maximum Suppression.
package postprocess

import (
	"sort"

	"gorgonia.org/tensor"
)

// Candidate is one detected object in model-input coordinates: a corner-corner
// box, a confidence score and a class index.
type Candidate struct {
	X1, Y1, X2, Y2 float32
	Score          float32
	Class          int
}

// Decoder converts raw model output into per-image candidate slices. The
// outer slice is ordered like the batch; a nil inner slice signals that the
// image produced no detections.
type Decoder interface {
	Decode(outputs []*tensor.Dense) ([][]Candidate, error)
}

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap above which a lower-scored box is suppressed.
	IoUThreshold float32
	// ClassAware restricts suppression to boxes of the same class.
	ClassAware bool
}

// NMS performs greedy Non-Maximum Suppression: candidates are ordered by
// descending score and each survivor suppresses every remaining candidate it
// overlaps beyond the threshold.
//
// Arguments:
//   - candidates: Detection candidates in any order.
//   - config: Suppression parameters.
//
// Returns:
//   - Surviving candidates, highest score first. Nil if none were given.
func NMS(candidates []Candidate, config NMSConfig) []Candidate {
	n := len(candidates)
	if n == 0 {
		return nil
	}

	sorted := make([]Candidate, n)
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	filtered := make([]Candidate, 0, n)
	used := make([]bool, n)
	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Class != sorted[j].Class {
				continue
			}
			if IoU(anchor, sorted[j]) > config.IoUThreshold {
				used[j] = true
			}
		}
	}
	return filtered
}

// IoU computes the Intersection over Union of two candidate boxes.
//
// Arguments:
//   - a: First candidate.
//   - b: Second candidate.
//
// Returns:
//   - float32: Overlap ratio in [0, 1]. Zero when the boxes are disjoint.
func IoU(a, b Candidate) float32 {
	ix1 := max32(a.X1, b.X1)
	iy1 := max32(a.Y1, b.Y1)
	ix2 := min32(a.X2, b.X2)
	iy2 := min32(a.Y2, b.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	intersection := iw * ih

	areaA := (a.X2 - a.X1) * (a.Y2 - a.Y1)
	areaB := (b.X2 - b.X1) * (b.Y2 - b.Y1)
	union := areaA + areaB - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
