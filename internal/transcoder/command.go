package transcoder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// Overlay places an image input on top of the video stream.
type Overlay struct {
	Path    string
	Opacity float64
	// X and Y are ffmpeg overlay expressions, e.g. "main_w-overlay_w-10".
	X string
	Y string
}

// Command accumulates one ffmpeg invocation. Operations append to it in
// order; Size tracks the frame dimension after the filters added so far.
type Command struct {
	Input  string
	Output string

	inputArgs  []string
	filters    []string
	overlay    *Overlay
	size       model.Dimension
	videoCodec string
	audioCodec string
	preset     string
	bitrate    int
	outputArgs []string
}

// NewCommand starts a command for input with the probed source size.
func NewCommand(input, output string, source model.Dimension) *Command {
	return &Command{
		Input:  input,
		Output: output,
		size:   source,
	}
}

// Size returns the frame dimension after the filters added so far.
func (c *Command) Size() model.Dimension {
	return c.size
}

// Filters returns the video filter chain in order.
func (c *Command) Filters() []string {
	out := make([]string, len(c.filters))
	copy(out, c.filters)
	return out
}

// Trim seeks the input to start and limits it to duration seconds.
// A zero duration keeps the rest of the input.
func (c *Command) Trim(start, duration float64) *Command {
	if start > 0 {
		c.inputArgs = append(c.inputArgs, "-ss", formatSeconds(start))
	}
	if duration > 0 {
		c.inputArgs = append(c.inputArgs, "-t", formatSeconds(duration))
	}
	return c
}

// Scale resizes the frame to d.
func (c *Command) Scale(d model.Dimension) *Command {
	c.filters = append(c.filters, fmt.Sprintf("scale=%d:%d", d.Width, d.Height))
	c.size = d
	return c
}

// Crop cuts region d at offset (x, y).
func (c *Command) Crop(x, y uint, d model.Dimension) *Command {
	c.filters = append(c.filters, fmt.Sprintf("crop=%d:%d:%d:%d", d.Width, d.Height, x, y))
	c.size = d
	return c
}

// FrameRate resamples the output to fps frames per second.
func (c *Command) FrameRate(fps int) *Command {
	c.filters = append(c.filters, fmt.Sprintf("fps=%d", fps))
	return c
}

// Overlay adds an image overlay. Only one overlay is kept; a later call replaces it.
func (c *Command) Overlay(o Overlay) *Command {
	c.overlay = &o
	return c
}

// Encode sets the codecs and the target video bitrate in kbps.
func (c *Command) Encode(videoCodec, audioCodec string, kbps int) *Command {
	c.videoCodec = videoCodec
	c.audioCodec = audioCodec
	c.bitrate = kbps
	return c
}

// Preset sets the encoder speed preset.
func (c *Command) Preset(preset string) *Command {
	c.preset = preset
	return c
}

// OutputArgs appends container flags placed before the output path.
func (c *Command) OutputArgs(args ...string) *Command {
	c.outputArgs = append(c.outputArgs, args...)
	return c
}

// Args renders the ffmpeg argument list.
func (c *Command) Args() []string {
	args := append([]string{}, c.inputArgs...)
	args = append(args, "-i", c.Input)

	if c.overlay != nil {
		args = append(args, "-i", c.overlay.Path)
		args = append(args, "-filter_complex", c.filterGraph(), "-map", "[out]", "-map", "0:a?")
	} else if len(c.filters) > 0 {
		args = append(args, "-vf", strings.Join(c.filters, ","))
	}

	if c.videoCodec != "" {
		args = append(args, "-c:v", c.videoCodec)
	}
	if c.preset != "" {
		args = append(args, "-preset", c.preset)
	}
	if c.bitrate > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", c.bitrate))
	}
	if c.audioCodec != "" {
		args = append(args, "-c:a", c.audioCodec)
	}
	args = append(args, c.outputArgs...)
	return append(args, "-y", c.Output)
}

func (c *Command) filterGraph() string {
	base := "null"
	if len(c.filters) > 0 {
		base = strings.Join(c.filters, ",")
	}
	return fmt.Sprintf(
		"[0:v]%s[base];[1:v]format=rgba,colorchannelmixer=aa=%.2f[wm];[base][wm]overlay=%s:%s[out]",
		base, c.overlay.Opacity, c.overlay.X, c.overlay.Y,
	)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
