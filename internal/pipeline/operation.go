package pipeline

import (
	"fmt"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/scale"
	"github.com/hszk-dev/vidingest/internal/transcoder"
)

// Operation priorities. Lower runs first.
const (
	PriorityTrim      = 10
	PriorityResize    = 20
	PriorityCrop      = 30
	PriorityFrameRate = 40
	PriorityWatermark = 50
)

// Operation is one step applied to an ffmpeg command.
type Operation interface {
	Name() string
	Priority() int
	// CanExecute reports whether the operation has what it needs to run.
	// Operations that cannot run are skipped, not failed.
	CanExecute() bool
	Execute(cmd *transcoder.Command) (*transcoder.Command, error)
	Metadata() map[string]any
}

// Compile-time verification that all operations implement Operation.
var (
	_ Operation = Trim{}
	_ Operation = Resize{}
	_ Operation = Crop{}
	_ Operation = SetFrameRate{}
	_ Operation = Watermark{}
)

// Trim keeps [Start, Start+Duration) seconds of the source.
type Trim struct {
	Start    float64
	Duration float64
}

func (Trim) Name() string  { return "trim" }
func (Trim) Priority() int { return PriorityTrim }

func (t Trim) CanExecute() bool {
	return t.Start > 0 || t.Duration > 0
}

func (t Trim) Execute(cmd *transcoder.Command) (*transcoder.Command, error) {
	if t.Start < 0 || t.Duration < 0 {
		return nil, fmt.Errorf("%w: trim window %v+%v", model.ErrInvalidArgument, t.Start, t.Duration)
	}
	return cmd.Trim(t.Start, t.Duration), nil
}

func (t Trim) Metadata() map[string]any {
	return map[string]any{"start": t.Start, "duration": t.Duration}
}

// Resize scales the frame through Strategy, then applies the scale-up
// policy and the Max/Min bounds. When both bounds conflict, Min wins.
type Resize struct {
	Strategy     scale.Strategy
	Target       model.Dimension
	AllowScaleUp bool
	Max          *model.Dimension
	Min          *model.Dimension
}

func (Resize) Name() string  { return "resize" }
func (Resize) Priority() int { return PriorityResize }

func (r Resize) CanExecute() bool {
	return r.Strategy != nil || r.Max != nil || r.Min != nil
}

// Resolve computes the output dimension for current. The result has even sides.
func (r Resize) Resolve(current model.Dimension) (model.Dimension, error) {
	if current.IsZero() {
		return model.Dimension{}, fmt.Errorf("%w: source dimension %s", model.ErrInvalidArgument, current)
	}

	d := current
	if r.Strategy != nil {
		var err error
		if d, err = r.Strategy.Apply(current, r.Target); err != nil {
			return model.Dimension{}, err
		}
	}

	if !r.AllowScaleUp && (d.Width > current.Width || d.Height > current.Height) {
		var err error
		if d, err = d.ScaleTo(min(d.Width, current.Width), min(d.Height, current.Height), true); err != nil {
			return model.Dimension{}, err
		}
	}

	if r.Max != nil && !d.Fits(*r.Max) {
		var err error
		if d, err = d.ScaleTo(r.Max.Width, r.Max.Height, true); err != nil {
			return model.Dimension{}, err
		}
	}

	if r.Min != nil && (d.Width < r.Min.Width || d.Height < r.Min.Height) {
		factor := max(float64(r.Min.Width)/float64(d.Width), float64(r.Min.Height)/float64(d.Height))
		var err error
		if d, err = d.ScaleByFactor(factor); err != nil {
			return model.Dimension{}, err
		}
	}

	return d.Even(), nil
}

func (r Resize) Execute(cmd *transcoder.Command) (*transcoder.Command, error) {
	target, err := r.Resolve(cmd.Size())
	if err != nil {
		return nil, err
	}
	if target == cmd.Size() {
		return cmd, nil
	}
	return cmd.Scale(target), nil
}

func (r Resize) Metadata() map[string]any {
	meta := map[string]any{"allow_scale_up": r.AllowScaleUp}
	if r.Strategy != nil {
		meta["strategy"] = r.Strategy.Describe()
		meta["target"] = r.Target.String()
	}
	if r.Max != nil {
		meta["max"] = r.Max.String()
	}
	if r.Min != nil {
		meta["min"] = r.Min.String()
	}
	return meta
}

// Crop cuts Region at offset (X, Y) of the frame as it is after resizing.
// With Center set the offset is computed to center the region.
type Crop struct {
	X      uint
	Y      uint
	Region model.Dimension
	Center bool
}

func (Crop) Name() string  { return "crop" }
func (Crop) Priority() int { return PriorityCrop }

func (c Crop) CanExecute() bool {
	return !c.Region.IsZero()
}

func (c Crop) Execute(cmd *transcoder.Command) (*transcoder.Command, error) {
	frame := cmd.Size()
	region := c.Region
	x, y := c.X, c.Y
	if c.Center {
		// A frame held below the target on one axis keeps that axis whole.
		region = model.Dimension{Width: min(region.Width, frame.Width), Height: min(region.Height, frame.Height)}
		x = (frame.Width - region.Width) / 2
		y = (frame.Height - region.Height) / 2
	}
	if x+region.Width > frame.Width || y+region.Height > frame.Height {
		return nil, fmt.Errorf("%w: crop %s at %d,%d exceeds frame %s", model.ErrInvalidArgument, region, x, y, frame)
	}
	if x == 0 && y == 0 && region == frame {
		return cmd, nil
	}
	return cmd.Crop(x, y, region), nil
}

func (c Crop) Metadata() map[string]any {
	return map[string]any{"x": c.X, "y": c.Y, "region": c.Region.String(), "center": c.Center}
}

// SetFrameRate resamples the output to FPS.
type SetFrameRate struct {
	FPS int
}

func (SetFrameRate) Name() string  { return "frame_rate" }
func (SetFrameRate) Priority() int { return PriorityFrameRate }

func (f SetFrameRate) CanExecute() bool {
	return f.FPS > 0
}

func (f SetFrameRate) Execute(cmd *transcoder.Command) (*transcoder.Command, error) {
	return cmd.FrameRate(f.FPS), nil
}

func (f SetFrameRate) Metadata() map[string]any {
	return map[string]any{"fps": f.FPS}
}

// Watermark overlays Image at Position with Opacity in [0,1].
type Watermark struct {
	Image    string
	Position model.WatermarkPosition
	Opacity  float64
	Margin   uint
}

func (Watermark) Name() string  { return "watermark" }
func (Watermark) Priority() int { return PriorityWatermark }

func (w Watermark) CanExecute() bool {
	return w.Image != "" && w.Opacity > 0
}

func (w Watermark) Execute(cmd *transcoder.Command) (*transcoder.Command, error) {
	if w.Opacity < 0 || w.Opacity > 1 {
		return nil, fmt.Errorf("%w: watermark opacity %v outside [0,1]", model.ErrInvalidArgument, w.Opacity)
	}
	x, y := transcoder.OverlayPosition(w.Position, w.Margin)
	return cmd.Overlay(transcoder.Overlay{Path: w.Image, Opacity: w.Opacity, X: x, Y: y}), nil
}

func (w Watermark) Metadata() map[string]any {
	return map[string]any{"image": w.Image, "position": string(w.Position), "opacity": w.Opacity}
}
