package pipeline

import (
	"log/slog"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/encoding"
	"github.com/hszk-dev/vidingest/internal/scale"
	"github.com/hszk-dev/vidingest/internal/transcoder"
)

// ResizeFromSpec derives the resize operation for a conversion spec.
func ResizeFromSpec(spec model.ConversionSpec) (Resize, error) {
	r := Resize{
		AllowScaleUp: spec.AllowScaleUp,
		Max:          spec.MaxDimension,
		Min:          spec.MinDimension,
	}
	if spec.Dimension != nil {
		strategy, err := scale.FromMode(spec.EffectiveScaleMode())
		if err != nil {
			return Resize{}, err
		}
		r.Strategy = strategy
		r.Target = *spec.Dimension
	}
	return r, nil
}

// ResolveDimension returns the output size for source under spec.
func ResolveDimension(source model.Dimension, spec model.ConversionSpec) (model.Dimension, error) {
	r, err := ResizeFromSpec(spec)
	if err != nil {
		return model.Dimension{}, err
	}
	if !r.CanExecute() {
		return source, nil
	}
	return r.Resolve(source)
}

// Build creates the pipeline for spec. watermarkPath, when set, replaces
// the watermark image named in the conversion spec (e.g. after it was resized locally).
// Every operation is added; those without settings are skipped at run time.
func Build(spec model.ConversionSpec, watermarkPath string, logger *slog.Logger) (*Pipeline, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	resize, err := ResizeFromSpec(spec)
	if err != nil {
		return nil, err
	}

	var trim Trim
	if spec.Trim != nil {
		trim = Trim{Start: spec.Trim.Start, Duration: spec.Trim.Duration}
	}

	var crop Crop
	switch {
	case spec.Crop != nil:
		crop = Crop{X: spec.Crop.X, Y: spec.Crop.Y, Region: spec.Crop.Region()}
	case spec.EffectiveScaleMode() == model.ScaleModeFill && spec.Dimension != nil && !spec.MaintainAspectRatio:
		crop = Crop{Region: spec.Dimension.Even(), Center: true}
	}

	var watermark Watermark
	if w := spec.Watermark; w != nil {
		image := w.Image
		if watermarkPath != "" {
			image = watermarkPath
		}
		watermark = Watermark{Image: image, Position: w.Position, Opacity: w.Opacity, Margin: w.Margin}
	}

	return New(logger).Add(
		trim,
		resize,
		crop,
		SetFrameRate{FPS: spec.FrameRate},
		watermark,
	), nil
}

// ApplyEncoding sets codecs, bitrate and muxer flags for format on cmd,
// using the frame size the pipeline produced. It returns the bitrate in kbps.
func ApplyEncoding(cmd *transcoder.Command, format encoding.Format, spec model.ConversionSpec, preset string) int {
	kbps := encoding.ResolveBitrate(format, spec, cmd.Size())
	cmd.Encode(format.VideoCodec, format.AudioCodec, kbps)
	if preset != "" && format.VideoCodec == "libx264" {
		cmd.Preset(preset)
	}
	cmd.OutputArgs(format.MuxerArgs()...)
	return kbps
}
