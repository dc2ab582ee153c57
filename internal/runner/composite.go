package runner

import (
	"context"
	"time"
)

// SubStep is one source collection inside a composite step. When Name is
// empty the sub-step checkpoints under "<parent>_<collection>".
type SubStep struct {
	Name             string
	SourceCollection string
	Processor        Processor
}

// RunComposite executes a sequential list of sub-steps, each with its own
// checkpoint, and returns a result with accumulated totals. Execution
// stops at the first sub-step that fails; completed sub-steps keep their
// checkpoints and are skipped on a later resume.
func (r *Runner) RunComposite(ctx context.Context, step string, subs []SubStep, opts StepOptions) (*Result, error) {
	start := time.Now()
	agg := &Result{Step: step, Status: ResultSuccess}

	for _, sub := range subs {
		name := sub.Name
		if name == "" {
			name = step + "_" + sub.SourceCollection
		}

		subOpts := opts
		subOpts.SourceCollection = sub.SourceCollection

		res, err := r.RunStep(ctx, name, sub.Processor, subOpts)
		if res != nil {
			agg.SourceCount += res.SourceCount
			agg.InsertedCount += res.InsertedCount
			agg.SkippedDuplicates += res.SkippedDuplicates
			agg.Errors += res.Errors
		}
		if err != nil {
			agg.Duration = time.Since(start)
			agg.Status = ResultFailed
			return agg, err
		}
	}

	agg.Duration = time.Since(start)
	if agg.Errors > 0 {
		agg.Status = ResultFailed
	}
	return agg, nil
}
