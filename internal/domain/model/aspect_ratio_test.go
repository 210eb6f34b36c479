package model

import (
	"errors"
	"testing"
)

func TestAspectRatioFrom_CanonicalResolutions(t *testing.T) {
	for _, res := range canonicalResolutions {
		t.Run(res.name, func(t *testing.T) {
			ar, err := AspectRatioFrom(int(res.width), int(res.height))
			if err != nil {
				t.Fatalf("AspectRatioFrom() unexpected error = %v", err)
			}
			if ar == nil {
				t.Fatal("AspectRatioFrom() = nil, want match")
			}
			if ar.Label != res.label {
				t.Errorf("Label = %q, want %q", ar.Label, res.label)
			}
			if ar.ResolutionName != res.name {
				t.Errorf("ResolutionName = %q, want %q", ar.ResolutionName, res.name)
			}
		})
	}
}

func TestAspectRatioFrom_FullHD(t *testing.T) {
	ar, err := AspectRatioFrom(1920, 1080)
	if err != nil {
		t.Fatal(err)
	}
	if ar.Label != "16:9" || ar.ResolutionName != "Full HD" {
		t.Errorf("AspectRatioFrom(1920, 1080) = %+v", ar)
	}
	if ar.String() != "Full HD (16:9)" {
		t.Errorf("String() = %q", ar.String())
	}
}

func TestAspectRatioFrom_RatioTable(t *testing.T) {
	tests := []struct {
		name      string
		w, h      int
		wantLabel string
	}{
		{"within tolerance of 16:9", 1000, 563, "16:9"},
		{"exactly 2:1 is not 16:9", 1000, 500, "2:1"},
		{"16:10", 1440, 900, "16:10"},
		{"5:4", 1280, 1024, "5:4"},
		{"4:3 off-table size", 800, 600, "4:3"},
		{"portrait 9:16 off-table size", 360, 640, "9:16"},
		{"2:3", 400, 600, "2:3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ar, err := AspectRatioFrom(tt.w, tt.h)
			if err != nil {
				t.Fatalf("AspectRatioFrom() unexpected error = %v", err)
			}
			if ar == nil {
				t.Fatalf("AspectRatioFrom(%d, %d) = nil, want %s", tt.w, tt.h, tt.wantLabel)
			}
			if ar.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", ar.Label, tt.wantLabel)
			}
			if ar.HasResolutionName() {
				t.Errorf("ResolutionName = %q, want none", ar.ResolutionName)
			}
		})
	}
}

func TestAspectRatioFrom_Unmatched(t *testing.T) {
	ar, err := AspectRatioFrom(1000, 100)
	if err != nil {
		t.Fatalf("AspectRatioFrom() unexpected error = %v", err)
	}
	if ar != nil {
		t.Errorf("AspectRatioFrom(1000, 100) = %+v, want nil", ar)
	}
	if ar.String() != "unmatched" {
		t.Errorf("String() = %q", ar.String())
	}
}

func TestAspectRatioFrom_InvalidInput(t *testing.T) {
	for _, in := range [][2]int{{0, 1080}, {1920, 0}, {-1, 10}, {10, -5}} {
		if _, err := AspectRatioFrom(in[0], in[1]); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("AspectRatioFrom(%d, %d) error = %v, want ErrInvalidArgument", in[0], in[1], err)
		}
	}
}

func TestRatioForLabel(t *testing.T) {
	if r, ok := RatioForLabel("4:3"); !ok || r != 4.0/3.0 {
		t.Errorf("RatioForLabel(4:3) = %v, %v", r, ok)
	}
	if _, ok := RatioForLabel("7:5"); ok {
		t.Error("RatioForLabel(7:5) should not match")
	}
}
