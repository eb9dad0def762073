package media

import "math"

// AspectCategory is the coarse orientation bucket a video is stored under.
type AspectCategory string

const (
	Landscape AspectCategory = "landscape"
	Portrait  AspectCategory = "portrait"
	Other     AspectCategory = "other"
)

const aspectTolerance = 0.01

// Classify buckets a width/height pair by how close its ratio is to 16:9 or 9:16.
func Classify(width, height int) AspectCategory {
	if width <= 0 || height <= 0 {
		return Other
	}

	ratio := float64(width) / float64(height)
	if math.Abs(ratio-16.0/9.0) <= aspectTolerance {
		return Landscape
	}
	if math.Abs(ratio-9.0/16.0) <= aspectTolerance {
		return Portrait
	}
	return Other
}
