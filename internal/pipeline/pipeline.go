// Package pipeline applies ordered media operations to an ffmpeg command.
package pipeline

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hszk-dev/vidingest/internal/infrastructure/metrics"
	"github.com/hszk-dev/vidingest/internal/transcoder"
)

// Step records one operation of a run.
type Step struct {
	Index    int
	Name     string
	Priority int
	Metadata map[string]any
}

// RunReport lists the operations a run executed and skipped, in execution order.
type RunReport struct {
	Executed []Step
	Skipped  []Step
}

// ExecutedNames returns the names of executed operations in order.
func (r RunReport) ExecutedNames() []string {
	names := make([]string, len(r.Executed))
	for i, s := range r.Executed {
		names[i] = s.Name
	}
	return names
}

// Pipeline holds the operations for one conversion.
type Pipeline struct {
	ops    []Operation
	logger *slog.Logger
}

// New creates an empty pipeline. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger}
}

// Add appends operations. Insertion order breaks priority ties.
func (p *Pipeline) Add(ops ...Operation) *Pipeline {
	p.ops = append(p.ops, ops...)
	return p
}

// Operations returns the operations in execution order.
func (p *Pipeline) Operations() []Operation {
	sorted := slices.Clone(p.ops)
	slices.SortStableFunc(sorted, func(a, b Operation) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	return sorted
}

// Run executes the operations by ascending priority. Operations whose
// CanExecute is false are skipped; the first execution error aborts the run.
func (p *Pipeline) Run(cmd *transcoder.Command) (*transcoder.Command, RunReport, error) {
	var report RunReport

	for i, op := range p.Operations() {
		step := Step{
			Index:    i,
			Name:     op.Name(),
			Priority: op.Priority(),
			Metadata: op.Metadata(),
		}

		if !op.CanExecute() {
			p.logger.Info("skipping pipeline operation",
				slog.String("operation", step.Name),
				slog.Int("execution_index", i),
				slog.Any("metadata", step.Metadata),
			)
			metrics.PipelineOperationsTotal.WithLabelValues(step.Name, metrics.OperationSkipped).Inc()
			report.Skipped = append(report.Skipped, step)
			continue
		}

		next, err := op.Execute(cmd)
		if err != nil {
			return nil, report, fmt.Errorf("%s operation: %w", step.Name, err)
		}
		cmd = next

		p.logger.Debug("pipeline operation executed",
			slog.String("operation", step.Name),
			slog.Int("execution_index", i),
			slog.Any("metadata", step.Metadata),
		)
		metrics.PipelineOperationsTotal.WithLabelValues(step.Name, metrics.OperationExecuted).Inc()
		report.Executed = append(report.Executed, step)
	}

	return cmd, report, nil
}
