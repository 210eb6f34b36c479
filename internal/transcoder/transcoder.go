package transcoder

import (
	"context"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// MediaInfo describes a probed source file.
type MediaInfo struct {
	Dimension  model.Dimension
	Duration   float64
	FrameRate  float64
	VideoCodec string
	AudioCodec string
	Size       int64
}

// HasAudio reports whether the source has an audio stream.
func (m MediaInfo) HasAudio() bool {
	return m.AudioCodec != ""
}

// Engine runs the external media encoder.
type Engine interface {
	// Probe reads stream information from a media file.
	Probe(ctx context.Context, path string) (*MediaInfo, error)

	// Run executes cmd and waits for it to finish.
	// The output directory must exist before calling this method.
	Run(ctx context.Context, cmd *Command) error
}
