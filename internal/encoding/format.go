package encoding

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// Format is the encoder configuration for one output container.
// Values are shared and must not be modified.
type Format struct {
	ID             string
	Extension      string
	ContentType    string
	VideoCodec     string
	AudioCodec     string
	DefaultBitrate int
	MinBitrate     int
	MaxBitrate     int
	muxerArgs      []string
}

var formats = map[string]Format{
	"mp4": {
		ID:             "mp4",
		Extension:      "mp4",
		ContentType:    "video/mp4",
		VideoCodec:     "libx264",
		AudioCodec:     "aac",
		DefaultBitrate: 2500,
		MinBitrate:     100,
		MaxBitrate:     20000,
		muxerArgs:      []string{"-movflags", "+faststart"},
	},
	"webm": {
		ID:             "webm",
		Extension:      "webm",
		ContentType:    "video/webm",
		VideoCodec:     "libvpx-vp9",
		AudioCodec:     "libopus",
		DefaultBitrate: 2000,
		MinBitrate:     100,
		MaxBitrate:     12000,
		muxerArgs:      []string{"-row-mt", "1"},
	},
	"mov": {
		ID:             "mov",
		Extension:      "mov",
		ContentType:    "video/quicktime",
		VideoCodec:     "libx264",
		AudioCodec:     "aac",
		DefaultBitrate: 3000,
		MinBitrate:     100,
		MaxBitrate:     20000,
		muxerArgs:      []string{"-movflags", "+faststart"},
	},
	"avi": {
		ID:             "avi",
		Extension:      "avi",
		ContentType:    "video/x-msvideo",
		VideoCodec:     "mpeg4",
		AudioCodec:     "libmp3lame",
		DefaultBitrate: 2000,
		MinBitrate:     100,
		MaxBitrate:     8000,
	},
}

// LookupFormat resolves a container name, case-insensitively.
func LookupFormat(id string) (Format, error) {
	f, ok := formats[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Format{}, fmt.Errorf("%w: unsupported format %q", model.ErrInvalidArgument, id)
	}
	return f, nil
}

// SupportedFormats returns the registered format ids, sorted.
func SupportedFormats() []string {
	ids := make([]string, 0, len(formats))
	for id := range formats {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SupportsBitrate reports whether kbps is within the format's range.
func (f Format) SupportsBitrate(kbps int) bool {
	return kbps >= f.MinBitrate && kbps <= f.MaxBitrate
}

// ClampBitrate limits kbps to the format's range.
func (f Format) ClampBitrate(kbps int) int {
	return clamp(kbps, f.MinBitrate, f.MaxBitrate)
}

// MuxerArgs returns container-specific ffmpeg output flags.
func (f Format) MuxerArgs() []string {
	return slices.Clone(f.muxerArgs)
}

// ResolveBitrate picks the video bitrate for a conversion: an explicit
// target wins, then the quality tier at the output size, then the format
// default. The result always lies in the format's range.
func ResolveBitrate(f Format, spec model.ConversionSpec, output model.Dimension) int {
	switch {
	case spec.TargetBitrate != nil:
		return f.ClampBitrate(*spec.TargetBitrate)
	case spec.Quality != "" && !output.IsZero():
		return f.ClampBitrate(ForDimension(output, ParseQuality(spec.Quality)))
	default:
		return f.DefaultBitrate
	}
}
