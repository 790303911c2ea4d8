// Package seeder runs a seeding plan against a destination, phase by phase:
// authenticate, snapshot counts, upload parties, catalog, inventory, orders
// and order lines, then read the aggregates back and compare them with the
// plan.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erp/seeder/internal/allocator"
	"github.com/erp/seeder/internal/client"
	"github.com/erp/seeder/internal/config"
	"github.com/erp/seeder/internal/idempotency"
	"github.com/erp/seeder/internal/logger"
	"github.com/erp/seeder/internal/resolve"
	"github.com/erp/seeder/internal/summary"
	"github.com/erp/seeder/internal/synth"
	"github.com/erp/seeder/internal/upload"
	"github.com/erp/seeder/internal/verify"
)

// ErrHalted marks a phase that did not run because a phase it depends on
// could not read back what it needed.
var ErrHalted = errors.New("seeder: dependency halted")

// Destination is the remote system as seen by the runner. *client.Client
// implements it.
type Destination interface {
	Authenticate(ctx context.Context, creds client.Credentials, tokenPath string) (*client.Session, error)
	upload.Importer
	resolve.Lister
	verify.Source
}

// Observer receives run metrics. *metrics.Exporter implements it.
type Observer interface {
	upload.Observer
	verify.Observer
	ObservePhase(phase string, d time.Duration)
	MarkRunFinished(at time.Time)
}

// Runner executes one plan.
type Runner struct {
	cfg      *config.Config
	plan     *config.Plan
	dest     Destination
	store    idempotency.Store
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

// Option customises a Runner.
type Option func(*Runner)

// WithStore enables skipping chunks delivered by earlier runs.
func WithStore(s idempotency.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock fixes "now", which anchors the date windows.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner. The plan must already be validated.
func New(cfg *config.Config, plan *config.Plan, dest Destination, opts ...Option) (*Runner, error) {
	if cfg == nil || plan == nil || dest == nil {
		return nil, errors.New("seeder: config, plan and destination are required")
	}
	r := &Runner{
		cfg:    cfg,
		plan:   plan,
		dest:   dest,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Ratios derives synthesizer ratios from a plan.
func Ratios(plan *config.Plan) synth.Ratios {
	ratios := synth.DefaultRatios()
	if plan.TaxRate != nil {
		ratios.TaxRate = decimal.NewFromFloat(*plan.TaxRate)
	}
	ratios.CostRatioMin = plan.CostRatio
	ratios.CostRatioMax = plan.CostRatioMax
	if plan.Discount.Probability != nil {
		ratios.DiscountProbability = *plan.Discount.Probability
	}
	ratios.DiscountCap = decimal.NewFromFloat(plan.Discount.Cap)
	ratios.DiscountMaxFraction = plan.Discount.MaxFraction
	ratios.SalesStatus = synth.StatusWeights(plan.Status)
	return ratios
}

// Run executes the plan. The returned summary is never nil. The error is
// non-nil only for fatal conditions: failed authentication or ctx ending.
// Upload failures, read-back failures and verification mismatches are
// reported in the summary.
func (r *Runner) Run(ctx context.Context) (*summary.Summary, error) {
	runID := uuid.NewString()
	ctx, log := logger.WithRunID(ctx, r.logger, runID)

	sum := &summary.Summary{
		RunID:     runID,
		Plan:      r.plan.Name,
		Seed:      r.plan.Seed,
		StartedAt: r.now(),
	}
	defer func() {
		sum.FinishedAt = r.now()
		if r.observer != nil {
			r.observer.MarkRunFinished(sum.FinishedAt)
		}
	}()

	st, err := r.newState(log, sum)
	if err != nil {
		return sum, err
	}

	log.Info("seeding run starting",
		zap.String("plan", r.plan.Name),
		zap.Int64("seed", r.plan.Seed),
		zap.String("target", sum.Target.StringFixed(2)),
		zap.Time("window_start", st.start),
		zap.Time("window_end", st.end))

	sess, err := r.dest.Authenticate(ctx, client.Credentials{
		Username: r.cfg.Auth.Username,
		Password: r.cfg.Auth.Password,
	}, r.cfg.Auth.TokenPath)
	if err != nil {
		sum.PhaseErrors = append(sum.PhaseErrors, summary.PhaseError{Phase: "auth", Err: err})
		return sum, err
	}
	// The token is never refreshed mid-run.
	if expected := r.expectedDuration(); sess.ExpiresWithin(r.now(), expected) {
		log.Warn("session token expires before the run is likely to finish",
			zap.Time("expires_at", sess.ExpiresAt),
			zap.Duration("expected_run", expected))
	}

	if baseline, err := st.verifier.Counts(ctx); err != nil {
		log.Warn("baseline stats unavailable, row counts will not be reconciled", zap.Error(err))
	} else {
		st.baseline = baseline
	}

	for i, p := range r.phases() {
		if r.plan.Skips(p.name) {
			log.Info("phase skipped by plan", zap.String("phase", p.name))
			continue
		}
		if dep := st.blocked(p.deps); dep != "" {
			st.halt(p.name, fmt.Errorf("%w: %s", ErrHalted, dep))
			continue
		}
		if i > 0 {
			if err := pause(ctx, r.cfg.Upload.PhaseDelay); err != nil {
				return sum, err
			}
		}

		start := time.Now()
		log.Info("phase starting", zap.String("phase", p.name))
		err := p.run(ctx, st)
		if r.observer != nil {
			r.observer.ObservePhase(p.name, time.Since(start))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sum, ctxErr
		}
		if err != nil {
			st.halt(p.name, err)
		}
	}

	t := sum.Totals()
	log.Info("seeding run finished",
		zap.Int("succeeded", t.Succeeded),
		zap.Int("failed", t.Failed),
		zap.Int("skipped", t.Skipped),
		zap.Int("phase_errors", len(sum.PhaseErrors)))
	return sum, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// linesPerOrder is a rough average of synthesized lines per order.
const linesPerOrder = 2

// expectedDuration estimates a run from its pauses alone: one inter-batch
// delay per chunk and one phase delay between phases.
func (r *Runner) expectedDuration() time.Duration {
	orders := r.plan.RecordCount
	if len(r.plan.Trajectory) > 0 {
		orders = 0
		for _, p := range r.plan.Trajectory {
			orders += p.Count
		}
	}
	purchases := r.plan.Purchases.RecordCount
	rows := map[string]int{
		PhaseCustomers:     r.plan.Customers,
		PhaseSuppliers:     r.plan.Suppliers,
		PhaseItems:         r.plan.Items,
		PhaseInventory:     r.plan.Items * 2,
		PhaseSales:         orders,
		PhaseSalesItems:    orders * linesPerOrder,
		PhasePurchases:     purchases,
		PhasePurchaseItems: purchases * linesPerOrder,
	}

	size := max(r.plan.EffectiveChunkSize(r.cfg.Upload.ChunkSize), 1)
	var chunks, phases int
	for _, p := range r.phases() {
		if r.plan.Skips(p.name) {
			continue
		}
		phases++
		if n := rows[p.name]; n > 0 {
			chunks += (n + size - 1) / size
		}
	}
	d := time.Duration(chunks) * r.plan.InterBatchDelay(r.cfg.Upload.InterBatchDelay)
	if phases > 1 {
		d += time.Duration(phases-1) * r.cfg.Upload.PhaseDelay
	}
	return d
}

// state is what phases share during one run.
type state struct {
	log      *zap.Logger
	sum      *summary.Summary
	synth    *synth.Synthesizer
	alloc    *allocator.Allocator
	rng      *rand.Rand
	uploader *upload.Uploader
	resolver *resolve.Resolver
	verifier *verify.Verifier

	now        time.Time
	start, end time.Time // single-target window, end exclusive

	baseline map[string]int64
	halted   map[string]error

	sales     []synth.SalesOrder
	purchases []synth.PurchaseOrder
	salesRep  *upload.Report
	purchRep  *upload.Report
	periods   []allocator.PeriodAllocation
}

func (r *Runner) newState(log *zap.Logger, sum *summary.Summary) (*state, error) {
	rng := rand.New(rand.NewSource(r.plan.Seed))

	var allocOpts []allocator.Option
	if len(r.plan.Categories) > 0 {
		cats := make([]allocator.Category, len(r.plan.Categories))
		for i, c := range r.plan.Categories {
			cats[i] = allocator.Category{Name: c.Name, Weight: c.Weight, Min: c.Min, Max: c.Max}
		}
		allocOpts = append(allocOpts, allocator.WithCategories(cats))
	}
	alloc, err := allocator.New(rng, allocOpts...)
	if err != nil {
		return nil, err
	}
	syn, err := synth.New(rng, Ratios(r.plan), synth.RunTag(r.plan.Seed))
	if err != nil {
		return nil, err
	}

	uploadOpts := []upload.Option{upload.WithLogger(log)}
	if r.store != nil {
		uploadOpts = append(uploadOpts, upload.WithStore(r.store))
	}
	verifyOpts := []verify.Option{verify.WithLogger(log)}
	if r.observer != nil {
		uploadOpts = append(uploadOpts, upload.WithObserver(r.observer))
		verifyOpts = append(verifyOpts, verify.WithObserver(r.observer))
	}
	retry := r.cfg.Upload.Retry
	up, err := upload.New(r.dest, upload.Config{
		ChunkSize:       r.plan.EffectiveChunkSize(r.cfg.Upload.ChunkSize),
		InterBatchDelay: r.plan.InterBatchDelay(r.cfg.Upload.InterBatchDelay),
		Retry: upload.RetryPolicy{
			MaxAttempts:    retry.MaxAttempts,
			InitialBackoff: retry.InitialBackoff,
			MaxBackoff:     retry.MaxBackoff,
			Multiplier:     retry.Multiplier,
		},
		IdempotencyTTL: r.cfg.Idempotency.TTL,
	}, uploadOpts...)
	if err != nil {
		return nil, err
	}

	now := r.now()
	st := &state{
		log:      log,
		sum:      sum,
		synth:    syn,
		alloc:    alloc,
		rng:      rng,
		uploader: up,
		resolver: resolve.New(r.dest, r.cfg.Upload.PageSize, log),
		verifier: verify.New(r.dest, verifyOpts...),
		now:      now,
		start:    r.plan.Start(now),
		end:      r.plan.End(now),
		halted:   make(map[string]error),
	}

	if len(r.plan.Trajectory) > 0 {
		var target float64
		for _, p := range r.plan.Trajectory {
			target += p.Target
		}
		sum.Target = decimal.NewFromFloat(target).Round(2)
	} else {
		sum.Target = decimal.NewFromFloat(r.plan.TargetTotal).Round(2)
	}
	return st, nil
}

func (st *state) halt(phase string, err error) {
	st.halted[phase] = err
	st.sum.PhaseErrors = append(st.sum.PhaseErrors, summary.PhaseError{Phase: phase, Err: err})
	st.log.Error("phase halted", zap.String("phase", phase), zap.Error(err))
}

func (st *state) blocked(deps []string) string {
	for _, d := range deps {
		if _, ok := st.halted[d]; ok {
			return d
		}
	}
	return ""
}

func (st *state) upload(ctx context.Context, table string, mode upload.Mode, rows []any) (*upload.Report, error) {
	report, err := st.uploader.Upload(ctx, table, mode, rows)
	if report != nil {
		st.sum.Uploads = append(st.sum.Uploads, report)
	}
	return report, err
}

// pick returns a random element of ids.
func (st *state) pick(ids []int64) int64 {
	return ids[st.synth.Intn(len(ids))]
}
