package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

func TestDefaultFFmpegConfig(t *testing.T) {
	cfg := DefaultFFmpegConfig()

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"FFmpegPath", cfg.FFmpegPath, "ffmpeg"},
		{"FFprobePath", cfg.FFprobePath, "ffprobe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %v, expected %v", tt.got, tt.expected)
			}
		})
	}
}

func TestValidateInput(t *testing.T) {
	t.Run("non-existent file returns error", func(t *testing.T) {
		err := validateInput("/non/existent/file.mp4")
		if !errors.Is(err, model.ErrConversion) {
			t.Errorf("expected ErrConversion, got %v", err)
		}
	})

	t.Run("directory returns error", func(t *testing.T) {
		if err := validateInput(t.TempDir()); err == nil {
			t.Error("expected error when input is a directory")
		}
	})

	t.Run("existing file succeeds", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "test.mp4")
		if err := os.WriteFile(tmpFile, []byte("dummy"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		if err := validateInput(tmpFile); err != nil {
			t.Errorf("unexpected error for existing file: %v", err)
		}
	})
}

func TestValidateOutputDir(t *testing.T) {
	t.Run("non-existent directory returns error", func(t *testing.T) {
		if err := validateOutputDir("/non/existent/dir"); err == nil {
			t.Error("expected error for non-existent directory")
		}
	})

	t.Run("file instead of directory returns error", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "file.txt")
		if err := os.WriteFile(tmpFile, []byte("dummy"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		if err := validateOutputDir(tmpFile); err == nil {
			t.Error("expected error when output is a file")
		}
	})

	t.Run("existing directory succeeds", func(t *testing.T) {
		if err := validateOutputDir(t.TempDir()); err != nil {
			t.Errorf("unexpected error for existing directory: %v", err)
		}
	})
}

func TestFFmpegEngine_Run_ValidationErrors(t *testing.T) {
	engine := NewFFmpegEngine(DefaultFFmpegConfig())
	ctx := context.Background()

	t.Run("returns error for non-existent input", func(t *testing.T) {
		cmd := NewCommand("/non/existent/input.mp4", filepath.Join(t.TempDir(), "out.mp4"), model.MustDimension(640, 360))
		if err := engine.Run(ctx, cmd); err == nil {
			t.Error("expected error for non-existent input")
		}
	})

	t.Run("returns error for non-existent output directory", func(t *testing.T) {
		inputFile := filepath.Join(t.TempDir(), "input.mp4")
		os.WriteFile(inputFile, []byte("dummy"), 0644)

		cmd := NewCommand(inputFile, "/non/existent/output/out.mp4", model.MustDimension(640, 360))
		if err := engine.Run(ctx, cmd); err == nil {
			t.Error("expected error for non-existent output directory")
		}
	})
}

func TestFFmpegEngine_Run_ContextCancellation(t *testing.T) {
	// Use a non-existent ffmpeg path to make the command fail
	cfg := DefaultFFmpegConfig()
	cfg.FFmpegPath = "/non/existent/ffmpeg"
	engine := NewFFmpegEngine(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	inputFile := filepath.Join(t.TempDir(), "input.mp4")
	os.WriteFile(inputFile, []byte("dummy"), 0644)
	cmd := NewCommand(inputFile, filepath.Join(t.TempDir(), "out.mp4"), model.MustDimension(640, 360))

	err := engine.Run(ctx, cmd)
	if !errors.Is(err, model.ErrConversion) {
		t.Errorf("expected ErrConversion for cancelled context, got %v", err)
	}
}

func TestParseProbeOutput(t *testing.T) {
	data := []byte(`{
		"format": {"duration": "12.480000", "size": "1048576"},
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
			 "avg_frame_rate": "30000/1001", "r_frame_rate": "30/1"}
		]
	}`)

	info, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if info.Dimension != model.MustDimension(1920, 1080) {
		t.Errorf("Dimension = %v", info.Dimension)
	}
	if info.VideoCodec != "h264" || info.AudioCodec != "aac" {
		t.Errorf("codecs = %q/%q", info.VideoCodec, info.AudioCodec)
	}
	if !info.HasAudio() {
		t.Error("HasAudio() = false")
	}
	if info.Duration != 12.48 {
		t.Errorf("Duration = %v", info.Duration)
	}
	if info.Size != 1048576 {
		t.Errorf("Size = %d", info.Size)
	}
	if info.FrameRate < 29.97 || info.FrameRate > 29.98 {
		t.Errorf("FrameRate = %v", info.FrameRate)
	}
}

func TestParseProbeOutput_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{`},
		{"no video stream", `{"streams": [{"codec_type": "audio", "codec_name": "aac"}]}`},
		{"video without size", `{"streams": [{"codec_type": "video", "codec_name": "h264"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseProbeOutput([]byte(tt.data))
			if !errors.Is(err, model.ErrConversion) {
				t.Errorf("expected ErrConversion, got %v", err)
			}
		})
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"25", 25},
		{"0/0", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.in); got != tt.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
