package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"shopload/blob"
	"shopload/bulkload"
	"shopload/keyindex"
	"shopload/schema"
	"shopload/store"
)

func newLoadCmd(a *app) *cobra.Command {
	var batchSizes map[string]int

	cmd := &cobra.Command{
		Use:   "load [plan...]",
		Short: "Bulk load CSV files into the database",
		Long: fmt.Sprintf(`Load the CSV files of each named plan, or of every plan when none is named.
Plans: %s.

Each plan runs with its triggers disabled and commits one transaction per
batch. A failed plan stops the run; plans already loaded stay loaded.`, strings.Join(schema.PlanNames(), ", ")),
		RunE: func(cmd *cobra.Command, args []string) error {
			for name, n := range batchSizes {
				if a.cfg.Load.BatchSizes == nil {
					a.cfg.Load.BatchSizes = map[string]int{}
				}
				a.cfg.Load.BatchSizes[name] = n
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runLoad(cmd, args)
		},
	}

	f := cmd.Flags()
	f.StringToIntVar(&batchSizes, "batch-size", nil, "per entity batch size, e.g. --batch-size orders=2000,cart=500")
	f.Bool("resume", false, "skip rows committed by a previous failed run")
	f.Bool("skip-triggers", false, "load without disabling any trigger")
	f.Bool("resolve-order-dates", true, "copy each order's date onto its order items")
	f.String("checkpoint-dir", "", "where resume checkpoints are kept")
	f.Float64("max-batches-per-second", 0, "throttle batch submission (0 disables it)")
	f.Int("progress-every", 0, "log progress every N committed rows")
	a.bind(cmd, false, map[string]string{
		"resume":                 "load.resume",
		"skip-triggers":          "load.skip_triggers",
		"resolve-order-dates":    "load.resolve_order_dates",
		"checkpoint-dir":         "load.checkpoint_dir",
		"max-batches-per-second": "load.max_batches_per_second",
		"progress-every":         "load.progress_every",
	})
	return cmd
}

func (a *app) connect(ctx context.Context) (*store.Repo, error) {
	dialect, err := store.DialectByName(a.cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	dsn, err := a.cfg.ResolveDSN()
	if err != nil {
		return nil, err
	}
	pctx := ctx
	if a.cfg.Database.PingTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, a.cfg.Database.PingTimeout)
		defer cancel()
	}
	repo, err := store.Open(pctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Connected", "dialect", dialect.Name, "dsn", redacted(dsn))
	return repo, nil
}

func (a *app) runLoad(cmd *cobra.Command, args []string) error {
	var plans []schema.Plan
	if len(args) == 0 {
		plans = schema.Plans()
	}
	for _, name := range args {
		p, err := schema.PlanByName(name)
		if err != nil {
			return err
		}
		plans = append(plans, p)
	}

	ctx := cmd.Context()
	blobs, err := a.store()
	if err != nil {
		return err
	}
	repo, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	total := 0
	var drops []func() error
	for i, plan := range plans {
		step(a.logger, i+1, len(plans), "Load "+plan.Name)
		report, drop, err := a.loadPlan(ctx, repo, blobs, plan)
		printLoadReport(cmd.OutOrStdout(), plan.Name, report)
		total += report.Rows()
		if err != nil {
			return fmt.Errorf("plan %s: %w", plan.Name, err)
		}
		drops = append(drops, drop)
	}
	// Checkpoints outlive each plan so a rerun after a later failure skips
	// the plans already loaded.
	for _, drop := range drops {
		if err := drop(); err != nil {
			return err
		}
	}
	successColor.Fprintf(cmd.OutOrStdout(), "%s rows loaded\n", humanize.Comma(int64(total)))
	return nil
}

// loadPlan runs one plan. The returned func removes its resume checkpoints.
func (a *app) loadPlan(ctx context.Context, repo *store.Repo, blobs blob.Store, plan schema.Plan) (bulkload.Report, func() error, error) {
	lc := a.cfg.Load
	logger := a.logger.With("plan", plan.Name)

	triggers := plan.Triggers
	switch {
	case len(triggers) == 0:
	case lc.SkipTriggers:
		logger.Warn("Loading with triggers active (load.skip_triggers)", "triggers", len(triggers))
		triggers = nil
	case !repo.SupportsTriggers():
		for _, t := range triggers {
			logger.Warn("Dialect cannot disable triggers; loading with the trigger active",
				"dialect", repo.Dialect().Name, bulkload.LogFieldTrigger, t.String())
		}
		triggers = nil
	}

	steps, closeSources := plan.Steps(schema.StepOptions{
		Store:             blobs,
		BatchSizes:        lc.BatchSizes,
		ResolveOrderDates: lc.ResolveOrderDates,
		FileSuffix:        a.cfg.FileSuffix(),
		Logger:            logger,
	})
	defer func() {
		if err := closeSources(); err != nil {
			logger.Warn("Closing sources failed", bulkload.LogFieldErr, err)
		}
	}()
	for _, s := range steps {
		logger.Debug("Step planned", bulkload.LogFieldStep, s.Name, bulkload.LogFieldTable, s.Table, "batch_size", s.BatchSize)
	}

	pcfg := bulkload.Config{
		Repo:             repo,
		Triggers:         triggers,
		ProgressEvery:    lc.ProgressEvery,
		StatementTimeout: a.cfg.Database.StatementTimeout,
		RunID:            plan.Name,
		KeepCheckpoints:  true,
		Logger:           logger,
	}
	drop := func() error { return nil }
	if lc.Resume {
		cp := bulkload.FileCheckpoints{Dir: lc.CheckpointDir}
		pcfg.Checkpoints = cp
		drop = func() error { return bulkload.ClearCheckpoints(cp, plan.Name, steps) }
	}
	if lc.MaxBatchesPerSecond > 0 {
		pcfg.Limiter = rate.NewLimiter(rate.Limit(lc.MaxBatchesPerSecond), 1)
	}

	report, err := bulkload.New(pcfg).Run(ctx, steps...)
	for _, s := range steps {
		if es, ok := s.Source.(*keyindex.EnrichSource); ok && es.Fallbacks() > 0 {
			logger.Warn("Order items referenced orders outside orders.csv; used the fallback date",
				bulkload.LogFieldStep, s.Name, bulkload.LogFieldRowCount, es.Fallbacks())
		}
	}
	return report, drop, err
}
