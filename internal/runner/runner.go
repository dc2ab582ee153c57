package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"legacy2norm/internal/checkpoint"
	"legacy2norm/internal/metrics"
	"legacy2norm/internal/progress"
	"legacy2norm/internal/source"
)

// DefaultBatchSize is the page size used when StepOptions leaves
// BatchSize unset.
const DefaultBatchSize = 500

// Outcome classifies what the processor did with one source document.
// The zero value is a silent skip.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeInserted
	OutcomeDuplicate
	OutcomeErrored
)

// BatchResult is the per-document outcome a processor reports back. Err
// is only meaningful when Outcome is OutcomeErrored.
type BatchResult struct {
	Outcome Outcome
	Err     error
}

// Processor transforms one batch of source documents and writes them to
// the target, returning one result per input document in the same order.
// In dry-run mode it may still read and transform but must not write.
// Because delivery is at-least-once, writes must be idempotent (upsert on
// a migration-stable key).
type Processor func(ctx context.Context, batch []source.Document, dryRun bool) ([]BatchResult, error)

// BatchArchiver receives each fetched batch before it is processed.
type BatchArchiver interface {
	ArchiveBatch(ctx context.Context, step string, batch []source.Document) error
}

// StepOptions controls a single RunStep invocation.
type StepOptions struct {
	SourceCollection string
	BatchSize        int
	DryRun           bool
	Resume           bool
}

// ResultStatus reflects whether a step finished with per-item errors. It
// is independent of the checkpoint's own terminal status: a step can be
// checkpoint-completed and result-failed at the same time.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
)

// Result is the per-step summary returned by RunStep. It is never
// persisted; the checkpoint is the durable record.
type Result struct {
	Step              string
	SourceCount       int64
	InsertedCount     int64
	SkippedDuplicates int64
	Errors            int64
	Duration          time.Duration
	Status            ResultStatus
}

// Runner drives the fetch, process, tally, checkpoint loop for migration
// steps. One runner instance per migration invocation; nothing here is a
// singleton. Steps run strictly sequentially: each batch is fully
// fetched, processed and checkpointed before the next is requested.
type Runner struct {
	sources     source.Opener
	targets     TargetCounter
	checkpoints checkpoint.Store
	archiver    BatchArchiver
	metrics     *metrics.Collector
	tracker     *progress.Tracker
	logger      *zap.Logger
	runID       string
}

// New creates a runner. targets, archiver, collector and tracker may be
// nil when the corresponding feature is unused.
func New(
	sources source.Opener,
	targets TargetCounter,
	checkpointStore checkpoint.Store,
	archiver BatchArchiver,
	collector *metrics.Collector,
	tracker *progress.Tracker,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		sources:     sources,
		targets:     targets,
		checkpoints: checkpointStore,
		archiver:    archiver,
		metrics:     collector,
		tracker:     tracker,
		logger:      logger,
		runID:       uuid.NewString(),
	}
}

// RunID identifies this runner invocation in logs and archive keys.
func (r *Runner) RunID() string {
	return r.runID
}

// RunStep executes one migration step: it pages the source collection in
// ascending primary-key order, hands each batch to the processor, tallies
// the reported outcomes and checkpoints progress after every batch.
//
// With Resume set and an already-completed checkpoint, no processing
// happens and the result is synthesized from the stored counts. A fresh
// start (Resume unset) discards any prior progress and reprocesses from
// the beginning. On a batch-level failure the whole current batch counts
// as errored, the checkpoint is marked failed and the error is returned
// alongside the partial result; the safe resume point stays at the end of
// the previous batch.
func (r *Runner) RunStep(ctx context.Context, step string, processor Processor, opts StepOptions) (*Result, error) {
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if opts.SourceCollection == "" {
		return nil, errors.Errorf("step %s: source collection is required", step)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	log := r.logger.With(
		zap.String("step", step),
		zap.String("run_id", r.runID),
		zap.String("source", opts.SourceCollection),
	)

	// Idempotent rerun: a completed checkpoint plus Resume means the
	// step is done; report the stored counts without touching anything.
	if cp, ok := r.checkpoints.Get(step); ok && opts.Resume && cp.Status == checkpoint.StatusCompleted {
		log.Info("Step already completed, skipping",
			zap.Int64("processed_count", cp.ProcessedCount),
			zap.Int64("total_count", cp.TotalCount),
		)
		return &Result{
			Step:          step,
			SourceCount:   cp.TotalCount,
			InsertedCount: cp.ProcessedCount,
			Status:        ResultSuccess,
		}, nil
	}

	start := time.Now()
	res := &Result{Step: step, Status: ResultSuccess}
	coll := r.sources.Collection(opts.SourceCollection)

	var cursor any
	var processed int64
	var total int64
	resuming := false

	if cp, ok := r.checkpoints.Get(step); ok && opts.Resume {
		// Continue an interrupted or failed step from the stored cursor.
		// TotalCount stays as computed at the original step start even if
		// the source has drifted since.
		cursor = cp.LastProcessedID
		processed = cp.ProcessedCount
		total = cp.TotalCount
		resuming = true
		log.Info("Resuming step from checkpoint",
			zap.Int64("processed_count", processed),
			zap.String("prior_status", string(cp.Status)),
		)
	}

	if total == 0 {
		var err error
		total, err = coll.Count(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "step %s: counting source collection", step)
		}
	}
	res.SourceCount = total

	if !opts.DryRun {
		if err := r.initCheckpoint(ctx, step, total, processed, resuming); err != nil {
			return nil, err
		}
	}

	if r.tracker != nil {
		r.tracker.StartStep(step, total, processed)
	}
	if r.metrics != nil {
		r.metrics.StepStarted()
		defer r.metrics.StepFinished()
	}

	log.Info("Starting step",
		zap.Int64("total_count", total),
		zap.Int("batch_size", opts.BatchSize),
		zap.Bool("dry_run", opts.DryRun),
	)

	batches := 0
	for {
		batch, err := coll.NextBatch(ctx, cursor, opts.BatchSize)
		if err != nil {
			return r.failStep(ctx, log, step, res, start, opts.DryRun, errors.Wrapf(err, "step %s: fetching batch", step))
		}
		if len(batch) == 0 {
			break
		}
		last := batch[len(batch)-1].ID

		if r.archiver != nil && !opts.DryRun {
			if err := r.archiver.ArchiveBatch(ctx, step, batch); err != nil {
				return r.failStep(ctx, log, step, res, start, opts.DryRun, errors.Wrapf(err, "step %s: archiving batch", step))
			}
		}

		results, err := processor(ctx, batch, opts.DryRun)
		if err != nil {
			// The whole batch counts as errored; the cursor stays at the
			// end of the previous batch so a resume re-reads this one.
			res.Errors += int64(len(batch))
			return r.failStep(ctx, log, step, res, start, opts.DryRun, errors.Wrapf(err, "step %s: processing batch after id %v", step, cursor))
		}

		var inserted, duplicates, errored int64
		if !opts.DryRun {
			for _, br := range results {
				switch br.Outcome {
				case OutcomeInserted:
					inserted++
				case OutcomeDuplicate:
					duplicates++
				case OutcomeErrored:
					errored++
				}
			}
			res.InsertedCount += inserted
			res.SkippedDuplicates += duplicates
			res.Errors += errored
		}

		// Documents read, regardless of per-item outcome.
		processed += int64(len(batch))
		cursor = last
		batches++

		if !opts.DryRun {
			update := checkpoint.Update{
				LastProcessedID: last,
				ProcessedCount:  &processed,
				TotalCount:      &total,
			}
			if _, err := r.checkpoints.Save(ctx, step, update); err != nil {
				return r.failStep(ctx, log, step, res, start, opts.DryRun, errors.Wrapf(err, "step %s: saving checkpoint", step))
			}
		}

		if r.metrics != nil {
			r.metrics.BatchProcessed(int64(len(batch)), inserted, duplicates, errored)
			if !opts.DryRun {
				r.metrics.CheckpointSaved()
			}
		}
		if r.tracker != nil {
			r.tracker.AddBatch(int64(len(batch)), inserted, duplicates, errored)
		}

		log.Debug("Batch processed",
			zap.Int("batch", batches),
			zap.Int("documents", len(batch)),
			zap.Int64("processed_count", processed),
		)
	}

	if !opts.DryRun {
		completedAt := time.Now()
		completed := checkpoint.StatusCompleted
		update := checkpoint.Update{
			Status:         &completed,
			ProcessedCount: &processed,
			TotalCount:     &total,
			CompletedAt:    &completedAt,
		}
		if _, err := r.checkpoints.Save(ctx, step, update); err != nil {
			return r.failStep(ctx, log, step, res, start, opts.DryRun, errors.Wrapf(err, "step %s: finalizing checkpoint", step))
		}
	}

	res.Duration = time.Since(start)
	if res.Errors > 0 {
		res.Status = ResultFailed
	}
	if r.metrics != nil {
		r.metrics.ObserveStepDuration(res.Duration)
	}

	log.Info("Step finished",
		zap.Int64("source_count", res.SourceCount),
		zap.Int64("inserted", res.InsertedCount),
		zap.Int64("duplicates", res.SkippedDuplicates),
		zap.Int64("errors", res.Errors),
		zap.Int("batches", batches),
		zap.Duration("duration", res.Duration),
		zap.String("status", string(res.Status)),
	)
	return res, nil
}

// initCheckpoint flips the step's checkpoint to running. A fresh start
// resets the cursor and counts; a resume keeps them and clears any prior
// error. TotalCount is written here and never revised until the next
// fresh start.
func (r *Runner) initCheckpoint(ctx context.Context, step string, total, processed int64, resuming bool) error {
	now := time.Now()
	running := checkpoint.StatusRunning
	noError := ""

	update := checkpoint.Update{
		Status:     &running,
		TotalCount: &total,
		Error:      &noError,
	}
	if resuming {
		update.ProcessedCount = &processed
		if cp, ok := r.checkpoints.Get(step); !ok || cp.StartedAt == nil {
			update.StartedAt = &now
		}
	} else {
		zero := int64(0)
		update.ProcessedCount = &zero
		update.ResetCursor = true
		update.StartedAt = &now
	}

	if _, err := r.checkpoints.Save(ctx, step, update); err != nil {
		return errors.Wrapf(err, "step %s: initializing checkpoint", step)
	}
	return nil
}

// failStep marks the checkpoint failed, finalizes the partial result and
// returns the propagating error. Previously committed batches remain
// checkpointed; the stored cursor is still a valid resume point.
func (r *Runner) failStep(ctx context.Context, log *zap.Logger, step string, res *Result, start time.Time, dryRun bool, cause error) (*Result, error) {
	res.Duration = time.Since(start)
	res.Status = ResultFailed

	if !dryRun {
		now := time.Now()
		failed := checkpoint.StatusFailed
		msg := cause.Error()
		update := checkpoint.Update{
			Status:      &failed,
			Error:       &msg,
			CompletedAt: &now,
		}
		if _, err := r.checkpoints.Save(ctx, step, update); err != nil {
			log.Error("Failed to persist failed checkpoint", zap.Error(err))
		}
	}

	log.Error("Step failed", zap.Error(cause), zap.Duration("duration", res.Duration))
	return res, cause
}
