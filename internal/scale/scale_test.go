package scale

import (
	"errors"
	"math"
	"testing"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

func dim(w, h uint) model.Dimension {
	return model.MustDimension(w, h)
}

func TestStrategies_Apply(t *testing.T) {
	half, _ := ProportionalBy(50)
	wide, _ := NewToAspectRatio("16:9", 1280)
	square, _ := NewToAspectRatio("1:1", 0)
	portrait, _ := NewToAspectRatio("9:16", 0)

	tests := []struct {
		name     string
		strategy Strategy
		current  model.Dimension
		target   model.Dimension
		want     model.Dimension
	}{
		{"exact ignores current", Exact{}, dim(1920, 1080), dim(500, 500), dim(500, 500)},
		{"proportional half", half, dim(1920, 1080), dim(1, 1), dim(960, 540)},
		{"fit landscape into 720p", Fit{}, dim(1920, 1080), dim(1280, 720), dim(1280, 720)},
		{"fit portrait into 720p", Fit{}, dim(1080, 1920), dim(1280, 720), dim(405, 720)},
		{"fill landscape into square", Fill{}, dim(1920, 1080), dim(720, 720), dim(1280, 720)},
		{"fill portrait into landscape", Fill{}, dim(1080, 1920), dim(1280, 720), dim(1280, 2276)},
		{"aspect with max width", wide, dim(640, 480), dim(1, 1), dim(1280, 720)},
		{"aspect square keeps long side", square, dim(1920, 1080), dim(1, 1), dim(1920, 1920)},
		{"aspect portrait keeps long side", portrait, dim(1920, 1080), dim(1, 1), dim(1080, 1920)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.strategy.Apply(tt.current, tt.target)
			if err != nil {
				t.Fatalf("Apply() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFill_CoversTarget(t *testing.T) {
	sources := []model.Dimension{dim(1920, 1080), dim(1080, 1920), dim(640, 480), dim(333, 777)}
	targets := []model.Dimension{dim(720, 720), dim(1280, 720), dim(480, 854)}

	for _, src := range sources {
		for _, target := range targets {
			got, err := Fill{}.Apply(src, target)
			if err != nil {
				t.Fatalf("Fill.Apply(%v, %v) error = %v", src, target, err)
			}
			if got.Width < target.Width || got.Height < target.Height {
				t.Errorf("Fill.Apply(%v, %v) = %v does not cover target", src, target, got)
			}
		}
	}
}

func TestFit_NeverExceedsBounds(t *testing.T) {
	sources := []model.Dimension{
		dim(1920, 1080), dim(1080, 1920), dim(640, 480), dim(3840, 2160), dim(1280, 1024),
		dim(720, 1280), dim(1000, 563), dim(333, 777), dim(2560, 1080), dim(4096, 2160),
	}
	targets := []model.Dimension{
		dim(1280, 720), dim(720, 1280), dim(480, 480), dim(854, 480), dim(1920, 1080), dim(640, 640),
	}

	for _, src := range sources {
		for _, target := range targets {
			got, err := Fit{}.Apply(src, target)
			if err != nil {
				t.Fatalf("Fit.Apply(%v, %v) error = %v", src, target, err)
			}
			if got.Width > target.Width || got.Height > target.Height {
				t.Errorf("Fit.Apply(%v, %v) = %v exceeds bounds", src, target, got)
			}
			if diff := math.Abs(got.Ratio() - src.Ratio()); diff > 0.01 {
				t.Errorf("Fit.Apply(%v, %v) = %v ratio drift %.4f", src, target, got, diff)
			}
		}
	}
}

func TestFit_ExtremeRatio(t *testing.T) {
	got, err := Fit{}.Apply(dim(1, 1000), dim(10, 10))
	if err != nil {
		t.Fatalf("Fit.Apply() error = %v", err)
	}
	if got != dim(1, 10) {
		t.Errorf("Fit.Apply() = %v, want 1x10", got)
	}
}

func TestNewProportional_RejectsNonPositive(t *testing.T) {
	for _, f := range []float64{0, -0.5, math.Inf(1)} {
		if _, err := NewProportional(f); !errors.Is(err, model.ErrInvalidArgument) {
			t.Errorf("NewProportional(%v) error = %v, want ErrInvalidArgument", f, err)
		}
	}
	if _, err := ProportionalBy(0); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("ProportionalBy(0) error = %v, want ErrInvalidArgument", err)
	}
}

func TestNewToAspectRatio_UnknownLabel(t *testing.T) {
	if _, err := NewToAspectRatio("7:3", 0); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("NewToAspectRatio(7:3) error = %v, want ErrInvalidArgument", err)
	}
}

func TestFromMode(t *testing.T) {
	tests := []struct {
		mode model.ScaleMode
		want string
	}{
		{"", "fit"},
		{model.ScaleModeFit, "fit"},
		{model.ScaleModeFill, "fill"},
		{model.ScaleModeExact, "exact"},
	}
	for _, tt := range tests {
		s, err := FromMode(tt.mode)
		if err != nil {
			t.Fatalf("FromMode(%q) error = %v", tt.mode, err)
		}
		if s.Describe() != tt.want {
			t.Errorf("FromMode(%q).Describe() = %q, want %q", tt.mode, s.Describe(), tt.want)
		}
	}
	if _, err := FromMode("stretch"); err == nil {
		t.Error("FromMode(stretch) should fail")
	}
}
