package bulkload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"shopload/loaderr"
)

// Config holds configuration for a Pipeline.
type Config struct {
	Repo Repository
	// Triggers are suspended for the whole run and restored on every exit path.
	Triggers []Trigger
	// ProgressEvery logs progress each time this many more rows are committed. 0 disables it.
	ProgressEvery int
	// StatementTimeout bounds every store call. 0 means no bound beyond ctx.
	StatementTimeout time.Duration
	// Limiter, when set, throttles batch submission.
	Limiter *rate.Limiter
	// Checkpoints, when set, enables resume: committed row counts are saved
	// under RunID and skipped on the next run.
	Checkpoints Checkpointer
	RunID       string
	// KeepCheckpoints leaves the checkpoints in place after a successful run,
	// for callers that run several pipelines as one resumable unit.
	KeepCheckpoints bool
	Logger      *slog.Logger
	// OnTransition is called on every state change.
	OnTransition func(from, to State)
}

// Pipeline owns the store handle and the batch buffer for one run.
// A Pipeline is single use and not safe for concurrent use.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	state  State
	batch  *Batch
}

// New creates an idle Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return p.state }

func (p *Pipeline) transition(to State) {
	from := p.state
	p.state = to
	p.logger.Debug("Pipeline state changed", LogFieldState, to.String())
	if p.cfg.OnTransition != nil {
		p.cfg.OnTransition(from, to)
	}
}

func (p *Pipeline) validate(steps []Step) error {
	if p.cfg.Repo == nil {
		return errors.New("repository (Repo) is required")
	}
	if len(steps) == 0 {
		return errors.New("at least one step is required")
	}
	for _, s := range steps {
		if s.Table == "" {
			return fmt.Errorf("step %s: table name is required", s.Name)
		}
		if len(s.Columns) == 0 {
			return fmt.Errorf("step %s: target columns are required", s.Name)
		}
		if s.BatchSize <= 0 {
			return fmt.Errorf("step %s: batch size must be positive, got %d", s.Name, s.BatchSize)
		}
		if s.Source == nil {
			return fmt.Errorf("step %s: source is required", s.Name)
		}
	}
	return nil
}

// Run loads every step in order under one bulk-load mode.
//
// Idle -> Connected: the repository is pinged and every source validated.
// Connected -> Preparing: triggers are suspended.
// Preparing -> Streaming: steps run in order, one transaction per batch.
// Streaming -> Finalizing -> Closed: triggers are restored, whatever happened.
func (p *Pipeline) Run(ctx context.Context, steps ...Step) (report Report, err error) {
	if p.state != StateIdle {
		return report, fmt.Errorf("pipeline already used (state %s)", p.state)
	}
	if err := p.validate(steps); err != nil {
		return report, err
	}
	runStart := time.Now()
	defer func() { report.Duration = time.Since(runStart) }()

	// 1. Connect
	if err := p.connect(ctx); err != nil {
		p.transition(StateClosed)
		return report, err
	}
	p.transition(StateConnected)

	// 2. Validate sources and targets before anything is changed in the store
	if err := p.prepareSources(ctx, steps); err != nil {
		p.transition(StateClosed)
		return report, err
	}

	// 3. Suspend triggers
	p.transition(StatePreparing)
	mode, err := EnterBulkMode(ctx, p.cfg.Repo, p.cfg.Triggers, p.cfg.StatementTimeout, p.logger)
	if err != nil {
		p.transition(StateClosed)
		return report, err
	}
	defer func() {
		p.transition(StateFinalizing)
		p.batch = nil
		if rerr := mode.Release(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		} else if err == nil {
			err = p.clearCheckpoints(steps)
		}
		p.transition(StateClosed)
		if err != nil {
			p.logger.Error("Bulk load failed", LogFieldErr, err, LogFieldDuration, time.Since(runStart))
		} else {
			p.logger.Info("Bulk load done.", LogFieldTotal, report.Rows(), LogFieldDuration, time.Since(runStart))
		}
	}()

	// 4. Stream
	p.transition(StateStreaming)
	for _, step := range steps {
		sr, err := p.stream(ctx, step)
		report.Steps = append(report.Steps, sr)
		if err != nil {
			return report, fmt.Errorf("step %s: %w", step.Name, err)
		}
	}
	return report, nil
}

func (p *Pipeline) connect(ctx context.Context) error {
	pinger, ok := p.cfg.Repo.(Pinger)
	if !ok {
		return nil
	}
	pctx, cancel := withTimeout(ctx, p.cfg.StatementTimeout)
	defer cancel()
	if err := pinger.Ping(pctx); err != nil {
		if loaderr.KindOf(err) != loaderr.KindUnknown {
			return err
		}
		return loaderr.Connection("ping store", err)
	}
	return nil
}

func (p *Pipeline) prepareSources(ctx context.Context, steps []Step) error {
	checker, _ := p.cfg.Repo.(TableChecker)
	for _, step := range steps {
		if checker != nil {
			cctx, cancel := withTimeout(ctx, p.cfg.StatementTimeout)
			exists, err := checker.TableExists(cctx, step.Table)
			cancel()
			if err != nil {
				return fmt.Errorf("step %s: check table %s: %w", step.Name, step.Table, err)
			}
			if !exists {
				return fmt.Errorf("step %s: table %s does not exist", step.Name, step.Table)
			}
		}

		p.logger.Info("Validating source...", LogFieldStep, step.Name, LogFieldTable, step.Table)
		if err := step.Source.Validate(ctx); err != nil {
			return fmt.Errorf("step %s: source validation failed: %w", step.Name, err)
		}
	}
	return nil
}

func (p *Pipeline) checkpointKey(step Step) string {
	return checkpointKey(p.cfg.RunID, step.Name)
}

func (p *Pipeline) clearCheckpoints(steps []Step) error {
	if p.cfg.Checkpoints == nil || p.cfg.KeepCheckpoints {
		return nil
	}
	return ClearCheckpoints(p.cfg.Checkpoints, p.cfg.RunID, steps)
}

// stream runs the read loop for one step: read, flush when the buffer is
// full, convert, add. The remaining partial batch is flushed at the end.
func (p *Pipeline) stream(ctx context.Context, step Step) (StepReport, error) {
	start := time.Now()
	sr := StepReport{Name: step.Name, Table: step.Table}
	logger := p.logger.With(LogFieldStep, step.Name, LogFieldTable, step.Table)

	skip := 0
	if p.cfg.Checkpoints != nil {
		n, err := p.cfg.Checkpoints.Load(p.checkpointKey(step))
		if err != nil {
			return sr, err
		}
		skip = n
		if skip > 0 {
			logger.Info("Resuming from checkpoint", LogFieldRowCount, skip)
		}
	}

	logger.Info("Starting row processing...")
	p.batch = newBatch(step, 1, skip)
	read := 0

	for {
		rawRow, err := step.Source.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			sr.Duration = time.Since(start)
			return sr, fmt.Errorf("read line failed: %w", err)
		}
		read++
		if read <= skip {
			sr.Skipped++
			continue
		}

		if p.batch.Len() >= step.BatchSize {
			if err := p.flush(ctx, step, &sr, logger); err != nil {
				sr.Duration = time.Since(start)
				return sr, err
			}
		}

		values, err := step.Source.Convert(rawRow)
		if err == nil {
			err = p.batch.Add(values)
		}
		if err != nil {
			// read counts data rows; +1 for the header line.
			logger.Error("Row conversion failed", LogFieldRowIndex, read, LogFieldRawData, rawRow, LogFieldErr, err)
			if loaderr.KindOf(err) == loaderr.KindUnknown {
				err = loaderr.MalformedRow(step.Name, read+1, err)
			}
			sr.Duration = time.Since(start)
			return sr, fmt.Errorf("row conversion failed: %w", err)
		}
	}

	if p.batch.Len() > 0 {
		if err := p.flush(ctx, step, &sr, logger); err != nil {
			sr.Duration = time.Since(start)
			return sr, err
		}
	}

	sr.Duration = time.Since(start)
	logger.Info("Inserted total rows.", LogFieldRowCount, sr.Rows, LogFieldBatch, sr.Batches, LogFieldDuration, sr.Duration)
	return sr, nil
}

// flush submits the buffered batch as one transaction and resets the buffer.
// Cancellation is honoured here, between batches.
func (p *Pipeline) flush(ctx context.Context, step Step, sr *StepReport, logger *slog.Logger) error {
	b := p.batch
	if err := ctx.Err(); err != nil {
		logger.Warn("Cancelled at batch boundary", LogFieldBatch, b.Seq, LogFieldTotal, b.Offset)
		return fmt.Errorf("cancelled before batch %d: %w", b.Seq, err)
	}
	if p.cfg.Limiter != nil {
		if err := p.cfg.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("throttle before batch %d: %w", b.Seq, err)
		}
	}

	flushStart := time.Now()
	sctx, cancel := withTimeout(ctx, p.cfg.StatementTimeout)
	err := p.cfg.Repo.InsertBatch(sctx, b)
	cancel()
	if err != nil {
		logger.Error("Bulk insert failed", LogFieldBatch, b.Seq, LogFieldErr, err)
		return fmt.Errorf("bulk insert failed: %w", classifyInsertError(step.Table, err))
	}

	committed := b.Offset + b.Len()
	sr.Rows += b.Len()
	sr.Batches++
	logger.Info("Batch inserted", LogFieldBatch, b.Seq, LogFieldRowCount, b.Len(), LogFieldTotal, committed, LogFieldDuration, time.Since(flushStart))

	if p.cfg.ProgressEvery > 0 && committed/p.cfg.ProgressEvery > b.Offset/p.cfg.ProgressEvery {
		logger.Info(fmt.Sprintf("Loaded %d %s...", committed, step.Name), LogFieldTotal, committed)
	}

	if p.cfg.Checkpoints != nil {
		if err := p.cfg.Checkpoints.Save(p.checkpointKey(step), committed); err != nil {
			return fmt.Errorf("batch %d committed but checkpoint failed: %w", b.Seq, err)
		}
	}

	p.batch = newBatch(step, b.Seq+1, committed)
	return nil
}

func classifyInsertError(table string, err error) error {
	if loaderr.KindOf(err) != loaderr.KindUnknown {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return loaderr.Connection("insert into "+table, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return loaderr.ConstraintViolation(table, "", err)
}
