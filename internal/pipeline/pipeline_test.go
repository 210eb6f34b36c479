package pipeline

import (
	"errors"
	"slices"
	"testing"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/transcoder"
)

// fakeOperation is a configurable Operation for pipeline tests.
type fakeOperation struct {
	name       string
	priority   int
	canExecute bool
	executeErr error
	calls      *[]string
}

func (f fakeOperation) Name() string     { return f.name }
func (f fakeOperation) Priority() int    { return f.priority }
func (f fakeOperation) CanExecute() bool { return f.canExecute }

func (f fakeOperation) Execute(cmd *transcoder.Command) (*transcoder.Command, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.name)
	}
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	return cmd, nil
}

func (f fakeOperation) Metadata() map[string]any {
	return map[string]any{"name": f.name}
}

func newTestCommand() *transcoder.Command {
	return transcoder.NewCommand("/in.mp4", "/out.mp4", model.MustDimension(1920, 1080))
}

func TestPipeline_Run_PriorityOrder(t *testing.T) {
	var calls []string
	p := New(nil).Add(
		fakeOperation{name: "watermark", priority: 50, canExecute: true, calls: &calls},
		fakeOperation{name: "trim", priority: 10, canExecute: true, calls: &calls},
		fakeOperation{name: "crop", priority: 30, canExecute: true, calls: &calls},
		fakeOperation{name: "resize", priority: 20, canExecute: true, calls: &calls},
	)

	_, report, err := p.Run(newTestCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"trim", "resize", "crop", "watermark"}
	if !slices.Equal(calls, want) {
		t.Errorf("execution order = %v, want %v", calls, want)
	}
	for i, step := range report.Executed {
		if step.Index != i {
			t.Errorf("step %s index = %d, want %d", step.Name, step.Index, i)
		}
	}
}

func TestPipeline_Run_StableForEqualPriority(t *testing.T) {
	var calls []string
	p := New(nil).Add(
		fakeOperation{name: "b", priority: 20, canExecute: true, calls: &calls},
		fakeOperation{name: "a", priority: 20, canExecute: true, calls: &calls},
		fakeOperation{name: "first", priority: 10, canExecute: true, calls: &calls},
		fakeOperation{name: "c", priority: 20, canExecute: true, calls: &calls},
	)

	if _, _, err := p.Run(newTestCommand()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"first", "b", "a", "c"}
	if !slices.Equal(calls, want) {
		t.Errorf("execution order = %v, want %v", calls, want)
	}
}

func TestPipeline_Run_SkipsOperationsThatCannotExecute(t *testing.T) {
	var calls []string
	p := New(nil).Add(
		fakeOperation{name: "trim", priority: 10, canExecute: true, calls: &calls},
		fakeOperation{name: "crop", priority: 30, canExecute: false, calls: &calls},
		fakeOperation{name: "resize", priority: 20, canExecute: true, calls: &calls},
		fakeOperation{name: "watermark", priority: 50, canExecute: true, calls: &calls},
	)

	_, report, err := p.Run(newTestCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantExecuted := []string{"trim", "resize", "watermark"}
	if got := report.ExecutedNames(); !slices.Equal(got, wantExecuted) {
		t.Errorf("executed = %v, want %v", got, wantExecuted)
	}
	if !slices.Equal(calls, wantExecuted) {
		t.Errorf("calls = %v, want %v", calls, wantExecuted)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Name != "crop" {
		t.Fatalf("skipped = %+v, want crop", report.Skipped)
	}
	if report.Skipped[0].Index != 2 {
		t.Errorf("skipped crop index = %d, want 2", report.Skipped[0].Index)
	}
}

func TestPipeline_Run_AbortsOnError(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	p := New(nil).Add(
		fakeOperation{name: "trim", priority: 10, canExecute: true, calls: &calls},
		fakeOperation{name: "resize", priority: 20, canExecute: true, executeErr: boom, calls: &calls},
		fakeOperation{name: "crop", priority: 30, canExecute: true, calls: &calls},
	)

	_, report, err := p.Run(newTestCommand())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !slices.Equal(calls, []string{"trim", "resize"}) {
		t.Errorf("calls = %v", calls)
	}
	if got := report.ExecutedNames(); !slices.Equal(got, []string{"trim"}) {
		t.Errorf("executed = %v", got)
	}
}

func TestBuild_SkipsUnsetOperations(t *testing.T) {
	spec := model.DefaultConversionSpec()
	spec.Dimension = &model.Dimension{Width: 1280, Height: 720}
	spec.FrameRate = 24

	p, err := Build(spec, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmd, report, err := p.Run(newTestCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := report.ExecutedNames(); !slices.Equal(got, []string{"resize", "frame_rate"}) {
		t.Errorf("executed = %v", got)
	}
	var skipped []string
	for _, s := range report.Skipped {
		skipped = append(skipped, s.Name)
	}
	if !slices.Equal(skipped, []string{"trim", "crop", "watermark"}) {
		t.Errorf("skipped = %v", skipped)
	}
	if !slices.Equal(cmd.Filters(), []string{"scale=1280:720", "fps=24"}) {
		t.Errorf("filters = %v", cmd.Filters())
	}
}

func TestBuild_FullSpec(t *testing.T) {
	spec := model.ConversionSpec{
		Format:    "mp4",
		Quality:   "high",
		Dimension: &model.Dimension{Width: 1280, Height: 720},
		ScaleMode: model.ScaleModeFit,
		Trim:      &model.TrimOptions{Start: 2, Duration: 10},
		Crop:      &model.CropOptions{X: 0, Y: 60, Width: 1280, Height: 600},
		Watermark: &model.WatermarkOptions{
			Image:    "brand/logo.png",
			Position: model.PositionBottomLeft,
			Opacity:  0.4,
			Margin:   16,
		},
		FrameRate:           30,
		MaintainAspectRatio: true,
	}

	p, err := Build(spec, "/tmp/work/watermark_logo.png", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmd, report, err := p.Run(newTestCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"trim", "resize", "crop", "frame_rate", "watermark"}
	if got := report.ExecutedNames(); !slices.Equal(got, want) {
		t.Errorf("executed = %v, want %v", got, want)
	}
	if cmd.Size() != model.MustDimension(1280, 600) {
		t.Errorf("Size() = %v", cmd.Size())
	}

	args := cmd.Args()
	if !slices.Contains(args, "/tmp/work/watermark_logo.png") {
		t.Errorf("prepared watermark not used: %v", args)
	}
	if slices.Contains(args, "brand/logo.png") {
		t.Errorf("original watermark path leaked: %v", args)
	}
}

func TestBuild_FillWithoutAspectCentersCrop(t *testing.T) {
	spec := model.ConversionSpec{
		Format:    "mp4",
		Dimension: &model.Dimension{Width: 720, Height: 720},
		ScaleMode: model.ScaleModeFill,
	}

	p, err := Build(spec, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmd, _, err := p.Run(newTestCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"scale=1280:720", "crop=720:720:280:0"}
	if !slices.Equal(cmd.Filters(), want) {
		t.Errorf("filters = %v, want %v", cmd.Filters(), want)
	}
}

func TestBuild_InvalidSpec(t *testing.T) {
	if _, err := Build(model.ConversionSpec{}, "", nil); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestApplyEncoding(t *testing.T) {
	cmd := transcoder.NewCommand("/in.mp4", "/out.webm", model.MustDimension(1280, 720))
	spec := model.ConversionSpec{Format: "webm", Quality: "medium"}

	format := mustFormat(t, "webm")
	kbps := ApplyEncoding(cmd, format, spec, "fast")
	if kbps != 2212 {
		t.Errorf("bitrate = %d, want 2212", kbps)
	}

	args := cmd.Args()
	if slices.Contains(args, "-preset") {
		t.Errorf("preset should only apply to libx264: %v", args)
	}
	if !slices.Contains(args, "libvpx-vp9") || !slices.Contains(args, "2212k") {
		t.Errorf("args = %v", args)
	}
}

func TestBuild_FillLargerThanSourceWithoutScaleUp(t *testing.T) {
	spec := model.ConversionSpec{
		Format:    "mp4",
		Dimension: &model.Dimension{Width: 1280, Height: 1280},
		ScaleMode: model.ScaleModeFill,
	}

	p, err := Build(spec, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmd, _, err := p.Run(newTestCommand())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := cmd.Size(); got != model.MustDimension(1280, 1080) {
		t.Errorf("size = %v, want 1280x1080", got)
	}
	want := []string{"crop=1280:1080:320:0"}
	if !slices.Equal(cmd.Filters(), want) {
		t.Errorf("filters = %v, want %v", cmd.Filters(), want)
	}
}
