package transcoder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// PrepareWatermark loads the image name from the directory srcDir, scales it
// to width pixels (keeping its aspect ratio, never upscaling) and writes a PNG
// into dstDir. A zero width keeps the original size. name is resolved inside
// srcDir; it cannot reach files outside it, through ".." or symlinks.
func PrepareWatermark(srcDir, name, dstDir string, width int) (string, model.Dimension, error) {
	if srcDir == "" {
		return "", model.Dimension{}, fmt.Errorf("%w: watermark directory is not configured", model.ErrConfiguration)
	}
	if !filepath.IsLocal(name) {
		return "", model.Dimension{}, fmt.Errorf("%w: watermark image %q is outside the watermark directory", model.ErrInvalidArgument, name)
	}

	root, err := os.OpenRoot(srcDir)
	if err != nil {
		return "", model.Dimension{}, fmt.Errorf("%w: open watermark directory: %v", model.ErrConfiguration, err)
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		return "", model.Dimension{}, fmt.Errorf("%w: open watermark: %v", model.ErrConversion, err)
	}
	defer f.Close()

	src, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return "", model.Dimension{}, fmt.Errorf("%w: decode watermark: %v", model.ErrConversion, err)
	}

	img := src
	if width > 0 && width < src.Bounds().Dx() {
		img = imaging.Resize(src, width, 0, imaging.Lanczos)
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", model.Dimension{}, fmt.Errorf("%w: mkdir: %v", model.ErrStorage, err)
	}

	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	dstPath := filepath.Join(dstDir, "watermark_"+base+".png")
	if err := imaging.Save(img, dstPath); err != nil {
		return "", model.Dimension{}, fmt.Errorf("%w: save watermark: %v", model.ErrStorage, err)
	}

	b := img.Bounds()
	return dstPath, model.Dimension{Width: uint(b.Dx()), Height: uint(b.Dy())}, nil
}

// OverlayPosition returns overlay x and y expressions for an anchor with a
// pixel margin from the frame edges.
func OverlayPosition(pos model.WatermarkPosition, margin uint) (x, y string) {
	m := fmt.Sprint(margin)
	switch pos {
	case model.PositionTopLeft:
		return m, m
	case model.PositionBottomLeft:
		return m, "main_h-overlay_h-" + m
	case model.PositionBottomRight:
		return "main_w-overlay_w-" + m, "main_h-overlay_h-" + m
	case model.PositionCenter:
		return "(main_w-overlay_w)/2", "(main_h-overlay_h)/2"
	default:
		return "main_w-overlay_w-" + m, m
	}
}
