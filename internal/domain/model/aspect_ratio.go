package model

import (
	"fmt"
	"math"
)

// AspectRatioTolerance is the maximum absolute difference between an actual
// width/height ratio and a canonical ratio for them to be considered equal.
const AspectRatioTolerance = 0.02

// AspectRatio classifies a width x height pair against the canonical tables.
// Values are only produced by AspectRatioFrom and never mutated.
type AspectRatio struct {
	Label          string  `json:"label"`
	Ratio          float64 `json:"ratio"`
	ResolutionName string  `json:"resolution_name,omitempty"`
	Width          uint    `json:"width"`
	Height         uint    `json:"height"`
}

type namedRatio struct {
	label string
	ratio float64
}

type namedResolution struct {
	name   string
	label  string
	width  uint
	height uint
}

// Table order is significant: the first entry within tolerance wins.
var canonicalRatios = []namedRatio{
	{"16:9", 16.0 / 9.0},
	{"4:3", 4.0 / 3.0},
	{"1:1", 1.0},
	{"9:16", 9.0 / 16.0},
	{"3:2", 3.0 / 2.0},
	{"2:1", 2.0},
	{"21:9", 21.0 / 9.0},
	{"16:10", 16.0 / 10.0},
	{"5:4", 5.0 / 4.0},
	{"3:4", 3.0 / 4.0},
	{"4:5", 4.0 / 5.0},
	{"2:3", 2.0 / 3.0},
}

// Exact pixel matches are checked before ratio matching.
var canonicalResolutions = []namedResolution{
	{"4K UHD", "16:9", 3840, 2160},
	{"QHD", "16:9", 2560, 1440},
	{"Full HD", "16:9", 1920, 1080},
	{"HD", "16:9", 1280, 720},
	{"FWVGA", "16:9", 854, 480},
	{"nHD", "16:9", 640, 360},
	{"VGA", "4:3", 640, 480},
	{"Full HD Portrait", "9:16", 1080, 1920},
	{"HD Portrait", "9:16", 720, 1280},
	{"Square", "1:1", 1080, 1080},
	{"UltraWide FHD", "21:9", 2560, 1080},
	{"UltraWide QHD", "21:9", 3440, 1440},
}

// AspectRatioFrom classifies width x height. It returns (nil, nil) when
// neither the resolution table nor the ratio table matches.
func AspectRatioFrom(width, height int) (*AspectRatio, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: aspect ratio of %dx%d", ErrInvalidArgument, width, height)
	}
	w, h := uint(width), uint(height)
	actual := float64(width) / float64(height)

	for _, res := range canonicalResolutions {
		if res.width == w && res.height == h {
			return &AspectRatio{
				Label:          res.label,
				Ratio:          actual,
				ResolutionName: res.name,
				Width:          w,
				Height:         h,
			}, nil
		}
	}

	for _, nr := range canonicalRatios {
		if math.Abs(actual-nr.ratio) <= AspectRatioTolerance {
			return &AspectRatio{
				Label:  nr.label,
				Ratio:  actual,
				Width:  w,
				Height: h,
			}, nil
		}
	}

	return nil, nil
}

// AspectRatioOf classifies a Dimension.
func AspectRatioOf(d Dimension) (*AspectRatio, error) {
	return AspectRatioFrom(int(d.Width), int(d.Height))
}

// RatioForLabel returns the canonical numeric ratio for a label like "16:9".
func RatioForLabel(label string) (float64, bool) {
	for _, nr := range canonicalRatios {
		if nr.label == label {
			return nr.ratio, true
		}
	}
	return 0, false
}

// HasResolutionName reports whether the ratio matched a named resolution.
func (a *AspectRatio) HasResolutionName() bool {
	return a != nil && a.ResolutionName != ""
}

func (a *AspectRatio) String() string {
	if a == nil {
		return "unmatched"
	}
	if a.ResolutionName != "" {
		return fmt.Sprintf("%s (%s)", a.ResolutionName, a.Label)
	}
	return a.Label
}
