package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/seeder/internal/client"
	"github.com/erp/seeder/internal/config"
	"github.com/erp/seeder/internal/idempotency"
	"github.com/erp/seeder/internal/metrics"
	"github.com/erp/seeder/internal/sandbox"
	"github.com/erp/seeder/internal/seeder"
	"github.com/erp/seeder/internal/summary"
)

const shutdownTimeout = 5 * time.Second

type runOptions struct {
	planPath  string
	target    float64
	count     int
	chunkSize int
	delay     float64
	seed      int64
	dryRun    bool
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate and upload a plan",
		Example: `  seeder run --plan configs/plan.example.yaml
  seeder run --plan plan.yaml --target 250000 --count 120 --chunk-size 25
  seeder run --plan plan.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.planPath, "plan", "p", "", "scenario plan file (required)")
	f.Float64Var(&o.target, "target", 0, "override the plan's targetTotal")
	f.IntVar(&o.count, "count", 0, "override the plan's recordCount")
	f.IntVar(&o.chunkSize, "chunk-size", 0, "override the upload chunk size")
	f.Float64Var(&o.delay, "delay", 0, "override the delay between chunks, in seconds")
	f.Int64Var(&o.seed, "seed", 0, "override the plan's seed")
	f.BoolVar(&o.dryRun, "dry-run", false, "run against an in-process sandbox instead of the configured target")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func (a *app) run(ctx context.Context, cmd *cobra.Command, o *runOptions) error {
	plan, err := config.LoadPlanFromFile(o.planPath)
	if err != nil {
		return err
	}
	if err := plan.ApplyOverrides(config.Overrides{
		TargetTotal:            o.target,
		RecordCount:            o.count,
		ChunkSize:              o.chunkSize,
		InterBatchDelaySeconds: o.delay,
		Seed:                   o.seed,
	}); err != nil {
		return err
	}

	target := a.cfg.Target
	if o.dryRun {
		srv, err := startSandbox(a.cfg.Sandbox, "127.0.0.1:0", a.log)
		if err != nil {
			return err
		}
		defer closeWithTimeout(srv.Close)
		target.BaseURL = srv.URL()
		a.log.Info("dry run against in-process sandbox", zap.String("url", target.BaseURL))
	}

	retry := client.DefaultRetryConfig()
	c, err := client.New(target, &retry, client.WithLogger(a.log.Named("client")))
	if err != nil {
		return err
	}

	opts := []seeder.Option{seeder.WithLogger(a.log)}

	store, err := idempotency.New(ctx, a.cfg.Idempotency)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, seeder.WithStore(store))
	}

	if a.cfg.Metrics.Enabled {
		exp := metrics.NewExporter()
		if err := exp.Start(a.cfg.Metrics.Addr); err != nil {
			return err
		}
		defer closeWithTimeout(exp.Stop)
		a.log.Info("metrics endpoint started", zap.String("addr", exp.Addr()))
		opts = append(opts, seeder.WithObserver(exp))
	}

	runner, err := seeder.New(a.cfg, plan, c, opts...)
	if err != nil {
		return err
	}
	sum, runErr := runner.Run(ctx)

	summary.WriteConsole(cmd.OutOrStdout(), sum, !a.noColor)
	exportErr := a.export(ctx, sum)

	if runErr != nil {
		return runErr
	}
	if err := sum.Err(); err != nil {
		return fmt.Errorf("run %s finished with errors: %w", sum.RunID, err)
	}
	return exportErr
}

// export writes the workbook and uploads it to S3 when configured. Failures
// are logged and returned but never hide the run's own result.
func (a *app) export(ctx context.Context, sum *summary.Summary) error {
	var errs []error
	if path := a.cfg.Export.XLSXPath; path != "" {
		if err := summary.SaveWorkbook(path, sum); err != nil {
			a.log.Error("writing summary workbook", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
		} else {
			a.log.Info("summary workbook written", zap.String("path", path))
		}
	}
	if a.cfg.Export.S3.Enabled() {
		// a cancelled run still gets its summary uploaded
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		exp, err := summary.NewS3Exporter(ctx, a.cfg.Export.S3, summary.WithS3Logger(a.log))
		if err == nil {
			_, err = exp.Export(ctx, sum)
		}
		if err != nil {
			a.log.Error("uploading summary to s3", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func startSandbox(cfg config.SandboxConfig, addr string, log *zap.Logger) (*sandbox.Server, error) {
	srv, err := sandbox.New(cfg, sandbox.WithLogger(log.Named("sandbox")))
	if err != nil {
		return nil, err
	}
	if err := srv.Start(addr); err != nil {
		_ = srv.Close(context.Background())
		return nil, err
	}
	return srv, nil
}

func closeWithTimeout(stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = stop(ctx)
}
