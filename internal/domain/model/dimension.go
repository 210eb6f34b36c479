package model

import (
	"fmt"
	"math"
)

// Dimension is an immutable width x height pair in pixels. Both sides are > 0.
type Dimension struct {
	Width  uint `json:"width"`
	Height uint `json:"height"`
}

// NewDimension validates and returns a Dimension.
func NewDimension(width, height uint) (Dimension, error) {
	if width == 0 || height == 0 {
		return Dimension{}, fmt.Errorf("%w: dimension %dx%d must be positive", ErrInvalidArgument, width, height)
	}
	return Dimension{Width: width, Height: height}, nil
}

// MustDimension is NewDimension for compile-time constants; it panics on zero sides.
func MustDimension(width, height uint) Dimension {
	d, err := NewDimension(width, height)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether d is the zero value (not a valid dimension).
func (d Dimension) IsZero() bool {
	return d.Width == 0 || d.Height == 0
}

// ScaleByFactor returns Dimension(round(w*f), round(h*f)).
func (d Dimension) ScaleByFactor(f float64) (Dimension, error) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return Dimension{}, fmt.Errorf("%w: scale factor %v must be positive", ErrInvalidArgument, f)
	}
	w := math.Round(float64(d.Width) * f)
	h := math.Round(float64(d.Height) * f)
	if w < 1 || h < 1 {
		return Dimension{}, fmt.Errorf("%w: scale factor %v collapses %s", ErrInvalidArgument, f, d)
	}
	return Dimension{Width: uint(w), Height: uint(h)}, nil
}

// ScaleTo fits d into maxW x maxH. With preserveAspect the smaller of the two
// axis factors is applied and each side is kept at least 1 pixel; otherwise
// the bounds are returned as-is.
func (d Dimension) ScaleTo(maxW, maxH uint, preserveAspect bool) (Dimension, error) {
	if maxW == 0 || maxH == 0 {
		return Dimension{}, fmt.Errorf("%w: bounds %dx%d must be positive", ErrInvalidArgument, maxW, maxH)
	}
	if d.IsZero() {
		return Dimension{}, fmt.Errorf("%w: cannot scale %s", ErrInvalidArgument, d)
	}
	if !preserveAspect {
		return Dimension{Width: maxW, Height: maxH}, nil
	}
	factor := math.Min(float64(maxW)/float64(d.Width), float64(maxH)/float64(d.Height))
	// Rounding can overshoot a bound by one pixel.
	return Dimension{
		Width:  min(fitSide(d.Width, factor), maxW),
		Height: min(fitSide(d.Height, factor), maxH),
	}, nil
}

func fitSide(v uint, factor float64) uint {
	return uint(max(1, math.Round(float64(v)*factor)))
}

// IsPortrait reports height > width.
func (d Dimension) IsPortrait() bool {
	return d.Height > d.Width
}

// IsLandscape reports width >= height.
func (d Dimension) IsLandscape() bool {
	return d.Width >= d.Height
}

// Pixels returns width * height.
func (d Dimension) Pixels() uint64 {
	return uint64(d.Width) * uint64(d.Height)
}

// Ratio returns width / height.
func (d Dimension) Ratio() float64 {
	if d.Height == 0 {
		return 0
	}
	return float64(d.Width) / float64(d.Height)
}

// Fits reports whether d fits within bounds on both axes.
func (d Dimension) Fits(bounds Dimension) bool {
	return d.Width <= bounds.Width && d.Height <= bounds.Height
}

// Even rounds each side down to an even number (minimum 2).
// Most encoders reject odd dimensions for 4:2:0 chroma subsampling.
func (d Dimension) Even() Dimension {
	return Dimension{Width: evenFloor(d.Width), Height: evenFloor(d.Height)}
}

func evenFloor(v uint) uint {
	if v < 2 {
		return 2
	}
	return v &^ 1
}

func (d Dimension) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}
