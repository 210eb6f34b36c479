// Package encoding resolves output formats and target bitrates.
package encoding

import (
	"math"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// Quality is a named encoding quality tier.
type Quality string

const (
	QualityUltraLow        Quality = "ultra_low"
	QualityLow             Quality = "low"
	QualityMedium          Quality = "medium"
	QualityHigh            Quality = "high"
	QualityUltraHigh       Quality = "ultra_high"
	QualityMobileOptimized Quality = "mobile_optimized"
)

// Bitrate bounds in kbps.
const (
	MinBitrateKbps = 100
	MaxBitrateKbps = 20000

	assumedFPS = 30
)

// Bits per pixel per frame.
var bitsPerPixel = map[Quality]float64{
	QualityUltraLow:        0.04,
	QualityLow:             0.06,
	QualityMedium:          0.08,
	QualityHigh:            0.11,
	QualityUltraHigh:       0.15,
	QualityMobileOptimized: 0.05,
}

// Fast-path multipliers applied to the medium preset table.
var tierMultiplier = map[Quality]float64{
	QualityUltraLow:        0.5,
	QualityLow:             0.75,
	QualityMedium:          1.0,
	QualityHigh:            1.4,
	QualityUltraHigh:       1.9,
	QualityMobileOptimized: 0.7,
}

// ParseQuality maps a tier name to a Quality. Unknown or empty names are medium.
func ParseQuality(name string) Quality {
	q := Quality(name)
	if _, ok := bitsPerPixel[q]; ok {
		return q
	}
	return QualityMedium
}

// Preset is a named canonical resolution with a fixed medium bitrate.
type Preset struct {
	Name       string
	Size       model.Dimension
	MediumKbps int
}

var presets = []Preset{
	{"144p", model.Dimension{Width: 256, Height: 144}, 150},
	{"240p", model.Dimension{Width: 426, Height: 240}, 300},
	{"360p", model.Dimension{Width: 640, Height: 360}, 600},
	{"480p", model.Dimension{Width: 854, Height: 480}, 1000},
	{"720p", model.Dimension{Width: 1280, Height: 720}, 2500},
	{"1080p", model.Dimension{Width: 1920, Height: 1080}, 5000},
	{"1440p", model.Dimension{Width: 2560, Height: 1440}, 8000},
	{"4K", model.Dimension{Width: 3840, Height: 2160}, 16000},
	{"mobile_portrait", model.Dimension{Width: 720, Height: 1280}, 1800},
	{"mobile_landscape", model.Dimension{Width: 1280, Height: 720}, 1800},
}

// Presets returns a copy of the canonical preset table.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// ForPixels computes round(pixels * bpp * 30 / 1000) kbps, clamped to
// [MinBitrateKbps, MaxBitrateKbps].
func ForPixels(pixels uint64, quality Quality) int {
	bpp, ok := bitsPerPixel[quality]
	if !ok {
		bpp = bitsPerPixel[QualityMedium]
	}
	kbps := math.Round(float64(pixels) * bpp * assumedFPS / 1000)
	return clamp(int(kbps), MinBitrateKbps, MaxBitrateKbps)
}

// ForResolution returns the fixed kbps for a named preset.
func ForResolution(name string, quality Quality) (int, bool) {
	for _, p := range presets {
		if p.Name == name {
			return presetKbps(p, quality), true
		}
	}
	return 0, false
}

// ForDimension applies the pixel formula to d. The preset table is only
// consulted by name through ForResolution, so sizes next to a preset never
// get a higher rate than the preset itself.
func ForDimension(d model.Dimension, quality Quality) int {
	return ForPixels(d.Pixels(), quality)
}

func presetKbps(p Preset, quality Quality) int {
	m, ok := tierMultiplier[quality]
	if !ok {
		m = 1
	}
	return clamp(int(math.Round(float64(p.MediumKbps)*m)), MinBitrateKbps, MaxBitrateKbps)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
