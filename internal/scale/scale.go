// Package scale computes target dimensions from a source dimension.
package scale

import (
	"fmt"
	"math"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// Strategy turns the current dimension into a new one.
// Strategies without their own goal use target as the bounds.
type Strategy interface {
	Apply(current, target model.Dimension) (model.Dimension, error)
	Describe() string
}

// Compile-time verification that all strategies implement Strategy.
var (
	_ Strategy = Exact{}
	_ Strategy = Proportional{}
	_ Strategy = Fit{}
	_ Strategy = Fill{}
	_ Strategy = ToAspectRatio{}
)

// Exact returns the target verbatim. The aspect ratio may change.
type Exact struct{}

func (Exact) Apply(_, target model.Dimension) (model.Dimension, error) {
	if target.IsZero() {
		return model.Dimension{}, fmt.Errorf("%w: exact target %s", model.ErrInvalidArgument, target)
	}
	return target, nil
}

func (Exact) Describe() string { return "exact" }

// Proportional multiplies both sides by Factor.
type Proportional struct {
	Factor float64
}

// NewProportional returns a Proportional strategy; factor must be > 0.
func NewProportional(factor float64) (Proportional, error) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return Proportional{}, fmt.Errorf("%w: scale factor %v must be positive", model.ErrInvalidArgument, factor)
	}
	return Proportional{Factor: factor}, nil
}

// ProportionalBy takes a percentage, so 50 halves both sides.
func ProportionalBy(percent float64) (Proportional, error) {
	return NewProportional(percent / 100)
}

func (p Proportional) Apply(current, _ model.Dimension) (model.Dimension, error) {
	return current.ScaleByFactor(p.Factor)
}

func (p Proportional) Describe() string {
	return fmt.Sprintf("proportional x%g", p.Factor)
}

// Fit scales current to fit inside target, keeping the aspect ratio.
type Fit struct{}

func (Fit) Apply(current, target model.Dimension) (model.Dimension, error) {
	if current.IsZero() {
		return model.Dimension{}, fmt.Errorf("%w: source dimension %s", model.ErrInvalidArgument, current)
	}
	return current.ScaleTo(target.Width, target.Height, true)
}

func (Fit) Describe() string { return "fit" }

// Fill scales current so that it covers target on both axes, keeping the
// aspect ratio. The overflow is expected to be cropped downstream.
type Fill struct{}

func (Fill) Apply(current, target model.Dimension) (model.Dimension, error) {
	if current.IsZero() || target.IsZero() {
		return model.Dimension{}, fmt.Errorf("%w: fill %s into %s", model.ErrInvalidArgument, current, target)
	}
	widthFactor := float64(target.Width) / float64(current.Width)
	heightFactor := float64(target.Height) / float64(current.Height)

	scaled, err := current.ScaleByFactor(math.Max(widthFactor, heightFactor))
	if err != nil {
		return model.Dimension{}, err
	}
	// Rounding can leave a side one pixel short of the bound.
	if scaled.Width < target.Width {
		scaled.Width = target.Width
	}
	if scaled.Height < target.Height {
		scaled.Height = target.Height
	}
	return scaled, nil
}

func (Fill) Describe() string { return "fill" }

// ToAspectRatio reshapes current to Ratio. With MaxWidth set the result is
// MaxWidth wide; otherwise the longer side of current is kept.
type ToAspectRatio struct {
	Label    string
	Ratio    float64
	MaxWidth uint
}

// NewToAspectRatio looks up a canonical label such as "16:9".
func NewToAspectRatio(label string, maxWidth uint) (ToAspectRatio, error) {
	ratio, ok := model.RatioForLabel(label)
	if !ok {
		return ToAspectRatio{}, fmt.Errorf("%w: unknown aspect ratio %q", model.ErrInvalidArgument, label)
	}
	return ToAspectRatio{Label: label, Ratio: ratio, MaxWidth: maxWidth}, nil
}

func (a ToAspectRatio) Apply(current, _ model.Dimension) (model.Dimension, error) {
	if a.Ratio <= 0 {
		return model.Dimension{}, fmt.Errorf("%w: ratio %v must be positive", model.ErrInvalidArgument, a.Ratio)
	}
	if a.MaxWidth > 0 {
		return model.NewDimension(a.MaxWidth, roundSide(float64(a.MaxWidth)/a.Ratio))
	}
	if current.IsZero() {
		return model.Dimension{}, fmt.Errorf("%w: source dimension %s", model.ErrInvalidArgument, current)
	}

	long := max(current.Width, current.Height)
	if a.Ratio >= 1 {
		return model.NewDimension(long, roundSide(float64(long)/a.Ratio))
	}
	return model.NewDimension(roundSide(float64(long)*a.Ratio), long)
}

func (a ToAspectRatio) Describe() string {
	if a.MaxWidth > 0 {
		return fmt.Sprintf("aspect %s at width %d", a.Label, a.MaxWidth)
	}
	return fmt.Sprintf("aspect %s", a.Label)
}

func roundSide(v float64) uint {
	return uint(math.Round(v))
}

// FromMode maps a conversion scale mode to its strategy.
func FromMode(mode model.ScaleMode) (Strategy, error) {
	switch mode {
	case "", model.ScaleModeFit:
		return Fit{}, nil
	case model.ScaleModeFill:
		return Fill{}, nil
	case model.ScaleModeExact:
		return Exact{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown scale mode %q", model.ErrInvalidArgument, mode)
	}
}
