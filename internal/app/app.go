package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"legacy2norm/internal/archive"
	"legacy2norm/internal/checkpoint"
	"legacy2norm/internal/config"
	"legacy2norm/internal/database"
	"legacy2norm/internal/metrics"
	"legacy2norm/internal/progress"
	"legacy2norm/internal/runner"
)

// Migrator represents the main migration application
type Migrator struct {
	cfg         *config.Config
	logger      *zap.Logger
	db          *database.Client
	checkpoints checkpoint.Store
	metrics     *metrics.Collector
	tracker     *progress.Tracker
}

// New creates a new migrator instance
func New(cfg *config.Config, logger *zap.Logger) *Migrator {
	return &Migrator{
		cfg:     cfg,
		logger:  logger,
		db:      database.NewClient(logger),
		metrics: metrics.New(),
		tracker: progress.NewTracker(),
	}
}

// Run connects, loads checkpoints and executes every configured step in
// order. Steps run strictly sequentially; the first batch-level failure
// aborts the run and leaves the failed step's checkpoint as the resume
// point.
func (m *Migrator) Run(ctx context.Context) error {
	m.logger.Info("Starting migration",
		zap.Int("steps", len(m.cfg.Steps)),
		zap.Int("batch_size", m.cfg.Migration.BatchSize),
		zap.Bool("dry_run", m.cfg.Migration.DryRun),
		zap.Bool("resume", m.cfg.Migration.Resume),
	)

	if err := m.db.Connect(ctx, m.cfg.Mongo.URI, m.cfg.Mongo.Database); err != nil {
		return err
	}

	store, err := m.newCheckpointStore()
	if err != nil {
		return err
	}
	m.checkpoints = store
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load checkpoints: %w", err)
	}

	var archiver runner.BatchArchiver
	if m.cfg.Archive.Enabled {
		a, err := archive.NewMinioArchiver(ctx, archive.Config{
			Endpoint:  m.cfg.Archive.Endpoint,
			AccessKey: m.cfg.Archive.AccessKey,
			SecretKey: m.cfg.Archive.SecretKey,
			Secure:    m.cfg.Archive.Secure,
			Bucket:    m.cfg.Archive.Bucket,
			Prefix:    m.cfg.Archive.Prefix,
		}, m.logger)
		if err != nil {
			return fmt.Errorf("failed to create archiver: %w", err)
		}
		archiver = a
	}

	// Start metrics server in a goroutine with error handling
	go func() {
		if err := m.metrics.StartServer(m.cfg.MetricsAddr); err != nil {
			m.logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()

	var display *progress.Display
	if m.cfg.Migration.ShowProgress && !m.cfg.Migration.DryRun && progress.IsTerminalSupported() {
		display = progress.NewDisplay(m.tracker, 2*time.Second)
		display.Start()
		defer display.Stop()
	}

	run := runner.New(m.db, m.db, store, archiver, m.metrics, m.tracker, m.logger)
	opts := runner.StepOptions{
		BatchSize: m.cfg.Migration.BatchSize,
		DryRun:    m.cfg.Migration.DryRun,
		Resume:    m.cfg.Migration.Resume,
	}

	for _, step := range m.cfg.Steps {
		res, err := m.runStep(ctx, run, step, opts)
		if err != nil {
			return err
		}

		m.logger.Info("Step summary",
			zap.String("step", step.Name),
			zap.Int64("source_count", res.SourceCount),
			zap.Int64("inserted", res.InsertedCount),
			zap.Int64("duplicates", res.SkippedDuplicates),
			zap.Int64("errors", res.Errors),
			zap.Duration("duration", res.Duration),
			zap.String("status", string(res.Status)),
		)

		if !m.cfg.Migration.DryRun {
			expected := res.InsertedCount + res.SkippedDuplicates
			v, err := run.VerifyStep(ctx, step.Name, step.Target, runner.VerifyOptions{
				SourceTag:     step.SourceTag,
				ExpectedCount: &expected,
			})
			if err != nil {
				m.logger.Warn("Verification failed to run", zap.String("step", step.Name), zap.Error(err))
			} else if !v.IsValid {
				m.logger.Warn("Verification mismatch",
					zap.String("step", step.Name),
					zap.Strings("mismatches", v.Mismatches),
				)
			}
		}
	}

	m.logger.Info("Migration completed")
	return nil
}

func (m *Migrator) runStep(ctx context.Context, run *runner.Runner, step config.Step, opts runner.StepOptions) (*runner.Result, error) {
	tag := step.SourceTag
	if tag == "" {
		tag = runner.DeriveSourceTag(step.Name)
	}
	processor := m.copyProcessor(step.Target, tag)

	if len(step.Sources) > 0 {
		subs := make([]runner.SubStep, 0, len(step.Sources))
		for _, src := range step.Sources {
			subs = append(subs, runner.SubStep{
				SourceCollection: src,
				Processor:        processor,
			})
		}
		return run.RunComposite(ctx, step.Name, subs, opts)
	}

	opts.SourceCollection = step.Source
	return run.RunStep(ctx, step.Name, processor, opts)
}

// Verify runs the advisory count check for every configured step without
// migrating anything.
func (m *Migrator) Verify(ctx context.Context) error {
	if err := m.db.Connect(ctx, m.cfg.Mongo.URI, m.cfg.Mongo.Database); err != nil {
		return err
	}

	run := runner.New(m.db, m.db, checkpoint.NewMemoryStore(), nil, m.metrics, nil, m.logger)

	valid := true
	for _, step := range m.cfg.Steps {
		v, err := run.VerifyStep(ctx, step.Name, step.Target, runner.VerifyOptions{
			SourceTag: step.SourceTag,
		})
		if err != nil {
			return err
		}
		if !v.IsValid {
			valid = false
		}
	}

	if !valid {
		return fmt.Errorf("verification found mismatches")
	}
	return nil
}

func (m *Migrator) newCheckpointStore() (checkpoint.Store, error) {
	switch m.cfg.Checkpoint.Backend {
	case "mongo":
		coll := m.db.Database().Collection(m.cfg.Checkpoint.Collection)
		return checkpoint.NewMongoStore(coll), nil
	case "sqlite":
		return checkpoint.NewSQLiteStore(m.cfg.Checkpoint.Path)
	case "memory":
		return checkpoint.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", m.cfg.Checkpoint.Backend)
	}
}

// Close cleans up resources
func (m *Migrator) Close(ctx context.Context) error {
	if m.checkpoints != nil {
		if err := m.checkpoints.Close(); err != nil {
			m.logger.Error("Failed to close checkpoint store", zap.Error(err))
		}
	}
	return m.db.Disconnect(ctx)
}
