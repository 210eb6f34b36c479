package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ScaleMode selects how a requested dimension is applied to the source.
type ScaleMode string

const (
	ScaleModeFit   ScaleMode = "fit"
	ScaleModeFill  ScaleMode = "fill"
	ScaleModeExact ScaleMode = "exact"
)

// WatermarkPosition anchors the watermark inside the frame.
type WatermarkPosition string

const (
	PositionTopLeft     WatermarkPosition = "top-left"
	PositionTopRight    WatermarkPosition = "top-right"
	PositionBottomLeft  WatermarkPosition = "bottom-left"
	PositionBottomRight WatermarkPosition = "bottom-right"
	PositionCenter      WatermarkPosition = "center"
)

func (p WatermarkPosition) IsValid() bool {
	switch p {
	case PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight, PositionCenter:
		return true
	default:
		return false
	}
}

// TrimOptions cuts the source to [Start, Start+Duration) seconds.
// A zero Duration keeps everything after Start.
type TrimOptions struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration,omitempty"`
}

// CropOptions selects a region of the frame at offset (X, Y).
type CropOptions struct {
	X      uint `json:"x"`
	Y      uint `json:"y"`
	Width  uint `json:"width"`
	Height uint `json:"height"`
}

// Region returns the crop size as a Dimension.
func (c CropOptions) Region() Dimension {
	return Dimension{Width: c.Width, Height: c.Height}
}

// WatermarkOptions overlays an image on the output.
// Image names a file inside the worker's watermark directory; absolute paths
// and paths leaving that directory are rejected.
// Scale is the watermark width as a fraction of the output width.
type WatermarkOptions struct {
	Image    string            `json:"image"`
	Position WatermarkPosition `json:"position"`
	Opacity  float64           `json:"opacity"`
	Scale    float64           `json:"scale,omitempty"`
	Margin   uint              `json:"margin,omitempty"`
}

// ConversionSpec describes one requested conversion of an assembled source.
type ConversionSpec struct {
	Format              string            `json:"format"`
	Quality             string            `json:"quality,omitempty"`
	Dimension           *Dimension        `json:"dimension,omitempty"`
	TargetBitrate       *int              `json:"target_bitrate,omitempty"`
	AllowScaleUp        bool              `json:"allow_scale_up"`
	MaxDimension        *Dimension        `json:"max_dimension,omitempty"`
	MinDimension        *Dimension        `json:"min_dimension,omitempty"`
	MaintainAspectRatio bool              `json:"maintain_aspect_ratio"`
	ScaleMode           ScaleMode         `json:"scale_mode,omitempty"`
	Trim                *TrimOptions      `json:"trim,omitempty"`
	Crop                *CropOptions      `json:"crop,omitempty"`
	Watermark           *WatermarkOptions `json:"watermark,omitempty"`
	FrameRate           int               `json:"frame_rate,omitempty"`
}

// DefaultConversionSpec returns an mp4 medium-quality spec that keeps the source size.
func DefaultConversionSpec() ConversionSpec {
	return ConversionSpec{
		Format:              "mp4",
		Quality:             "medium",
		MaintainAspectRatio: true,
		ScaleMode:           ScaleModeFit,
	}
}

// EffectiveScaleMode returns the scale mode, defaulting to fit.
// Exact is downgraded to fit when the aspect ratio must be kept.
func (c ConversionSpec) EffectiveScaleMode() ScaleMode {
	mode := c.ScaleMode
	if mode == "" {
		mode = ScaleModeFit
	}
	if mode == ScaleModeExact && c.MaintainAspectRatio {
		return ScaleModeFit
	}
	return mode
}

// Validate checks the structural constraints of the conversion spec. Format and quality
// names are resolved by the encoding package.
func (c ConversionSpec) Validate() error {
	if strings.TrimSpace(c.Format) == "" {
		return fmt.Errorf("%w: format is required", ErrInvalidArgument)
	}
	for name, d := range map[string]*Dimension{
		"dimension":     c.Dimension,
		"max_dimension": c.MaxDimension,
		"min_dimension": c.MinDimension,
	} {
		if d != nil && d.IsZero() {
			return fmt.Errorf("%w: %s %s must be positive", ErrInvalidArgument, name, d)
		}
	}
	if c.MaxDimension != nil && c.MinDimension != nil &&
		(c.MinDimension.Width > c.MaxDimension.Width || c.MinDimension.Height > c.MaxDimension.Height) {
		return fmt.Errorf("%w: min_dimension %s exceeds max_dimension %s", ErrInvalidArgument, c.MinDimension, c.MaxDimension)
	}
	if c.TargetBitrate != nil && *c.TargetBitrate <= 0 {
		return fmt.Errorf("%w: target bitrate %d must be positive", ErrInvalidArgument, *c.TargetBitrate)
	}
	switch c.ScaleMode {
	case "", ScaleModeFit, ScaleModeFill, ScaleModeExact:
	default:
		return fmt.Errorf("%w: unknown scale mode %q", ErrInvalidArgument, c.ScaleMode)
	}
	if c.Trim != nil && (c.Trim.Start < 0 || c.Trim.Duration < 0) {
		return fmt.Errorf("%w: trim window must not be negative", ErrInvalidArgument)
	}
	if c.Crop != nil && c.Crop.Region().IsZero() {
		return fmt.Errorf("%w: crop region must be positive", ErrInvalidArgument)
	}
	if w := c.Watermark; w != nil {
		if w.Image != "" && !filepath.IsLocal(w.Image) {
			return fmt.Errorf("%w: watermark image %q must be a relative path inside the watermark directory", ErrInvalidArgument, w.Image)
		}
		if w.Opacity < 0 || w.Opacity > 1 {
			return fmt.Errorf("%w: watermark opacity %v outside [0,1]", ErrInvalidArgument, w.Opacity)
		}
		if w.Position != "" && !w.Position.IsValid() {
			return fmt.Errorf("%w: unknown watermark position %q", ErrInvalidArgument, w.Position)
		}
		if w.Scale < 0 || w.Scale > 1 {
			return fmt.Errorf("%w: watermark scale %v outside [0,1]", ErrInvalidArgument, w.Scale)
		}
	}
	if c.FrameRate < 0 {
		return fmt.Errorf("%w: frame rate %d must not be negative", ErrInvalidArgument, c.FrameRate)
	}
	return nil
}

// ResultStatus is the outcome of one conversion attempt.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
)

// ResolutionResult records the outcome of one conversion attempt.
type ResolutionResult struct {
	Conversion string       `json:"conversion"`
	OutputPath string       `json:"output_path,omitempty"`
	Status     ResultStatus `json:"status"`
	Size       int64        `json:"size"`
	Error      string       `json:"error,omitempty"`
}

// Succeeded reports whether the conversion produced an output.
func (r ResolutionResult) Succeeded() bool {
	return r.Status == ResultSuccess
}

// FailedResult builds a failed ResolutionResult from err.
func FailedResult(conversion string, err error) ResolutionResult {
	return ResolutionResult{
		Conversion: conversion,
		Status:     ResultFailed,
		Error:      err.Error(),
	}
}
