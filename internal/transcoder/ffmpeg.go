package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// FFmpegConfig holds configuration for the FFmpeg engine.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// FFprobePath is the path to the ffprobe binary.
	// If empty, "ffprobe" will be used.
	FFprobePath string
}

// DefaultFFmpegConfig returns an FFmpegConfig with production-ready defaults.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
	}
}

// stderrTail bounds how much encoder output is kept in error messages.
const stderrTail = 2048

// FFmpegEngine implements Engine using the FFmpeg CLI.
type FFmpegEngine struct {
	config FFmpegConfig
}

// Compile-time verification that FFmpegEngine implements Engine.
var _ Engine = (*FFmpegEngine)(nil)

// NewFFmpegEngine creates a new FFmpeg-based engine.
func NewFFmpegEngine(cfg FFmpegConfig) *FFmpegEngine {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	return &FFmpegEngine{
		config: cfg,
	}
}

// Run executes ffmpeg as a subprocess and waits for completion.
func (e *FFmpegEngine) Run(ctx context.Context, cmd *Command) error {
	if err := validateInput(cmd.Input); err != nil {
		return err
	}
	if err := validateOutputDir(filepath.Dir(cmd.Output)); err != nil {
		return err
	}

	var stderr bytes.Buffer
	proc := exec.CommandContext(ctx, e.config.FFmpegPath, cmd.Args()...)
	proc.Stdout = nil
	proc.Stderr = &stderr

	if err := proc.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: transcoding cancelled: %w", model.ErrConversion, ctx.Err())
		}
		return fmt.Errorf("%w: ffmpeg execution failed: %v: %s", model.ErrConversion, err, tail(stderr.String()))
	}
	return nil
}

// Probe runs ffprobe and extracts the first video stream.
func (e *FFmpegEngine) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	if err := validateInput(path); err != nil {
		return nil, err
	}

	proc := exec.CommandContext(ctx, e.config.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := proc.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: probe cancelled: %w", model.ErrConversion, ctx.Err())
		}
		return nil, fmt.Errorf("%w: ffprobe failed: %v", model.ErrConversion, err)
	}
	return parseProbeOutput(out)
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        uint   `json:"width"`
	Height       uint   `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
}

func parseProbeOutput(data []byte) (*MediaInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output: %v", model.ErrConversion, err)
	}

	info := &MediaInfo{}
	info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	info.Size, _ = strconv.ParseInt(probe.Format.Size, 10, 64)

	foundVideo := false
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			dim, err := model.NewDimension(s.Width, s.Height)
			if err != nil {
				return nil, fmt.Errorf("%w: video stream has no size: %v", model.ErrConversion, err)
			}
			info.Dimension = dim
			info.VideoCodec = s.CodecName
			info.FrameRate = parseFrameRate(s.AvgFrameRate)
			if info.FrameRate == 0 {
				info.FrameRate = parseFrameRate(s.RFrameRate)
			}
			foundVideo = true
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}

	if !foundVideo {
		return nil, fmt.Errorf("%w: no video stream found", model.ErrConversion)
	}
	return info, nil
}

// parseFrameRate reads ffprobe rates like "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// validateInput checks if the input file exists and is readable.
func validateInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: input file does not exist: %s", model.ErrConversion, inputPath)
		}
		return fmt.Errorf("%w: failed to access input file: %v", model.ErrConversion, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%w: input path is a directory, expected a file: %s", model.ErrConversion, inputPath)
	}

	return nil
}

// validateOutputDir checks if the output directory exists.
func validateOutputDir(outputDir string) error {
	info, err := os.Stat(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: output directory does not exist: %s", model.ErrConversion, outputDir)
		}
		return fmt.Errorf("%w: failed to access output directory: %v", model.ErrConversion, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: output path is not a directory: %s", model.ErrConversion, outputDir)
	}

	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return s[len(s)-stderrTail:]
	}
	return s
}
