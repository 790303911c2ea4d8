package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Plan describes one seeding scenario: what aggregate to reproduce in the
// destination and how the supporting records look.
type Plan struct {
	// Name is a descriptive name for this plan.
	Name string `yaml:"name" json:"name"`

	// Seed feeds every random source of the run. Equal seeds reproduce
	// equal records, which lets reruns hit the idempotency store.
	// Default: current unix time
	Seed int64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// TargetTotal is the realized sales revenue to reproduce over the window.
	TargetTotal float64 `yaml:"targetTotal" json:"targetTotal"`

	// RecordCount is the number of sales orders for TargetTotal.
	RecordCount int `yaml:"recordCount" json:"recordCount"`

	// ChunkSize overrides upload.chunk_size when set.
	ChunkSize int `yaml:"chunkSize,omitempty" json:"chunkSize,omitempty"`

	// InterBatchDelaySeconds overrides upload.inter_batch_delay when set.
	InterBatchDelaySeconds float64 `yaml:"interBatchDelaySeconds,omitempty" json:"interBatchDelaySeconds,omitempty"`

	// CostRatio is the lower bound of the cost/subtotal ratio.
	// Default: 0.58
	CostRatio float64 `yaml:"costRatio,omitempty" json:"costRatio,omitempty"`

	// CostRatioMax is the upper bound; equal to CostRatio means fixed.
	// Default: 0.70 (or CostRatio when that is larger)
	CostRatioMax float64 `yaml:"costRatioMax,omitempty" json:"costRatioMax,omitempty"`

	// TaxRate applied to every order subtotal. A pointer so 0 is expressible.
	// Default: 0.15
	TaxRate *float64 `yaml:"taxRate,omitempty" json:"taxRate,omitempty"`

	// ToleranceFraction is the accepted |achieved-target|/target.
	// Default: 0.1
	ToleranceFraction float64 `yaml:"toleranceFraction,omitempty" json:"toleranceFraction,omitempty"`

	// WindowDays is the length of the order-date window ending at EndDate.
	// Default: 30
	WindowDays int `yaml:"windowDays,omitempty" json:"windowDays,omitempty"`

	// EndDate (YYYY-MM-DD) closes the window. Default: today
	EndDate string `yaml:"endDate,omitempty" json:"endDate,omitempty"`

	// Bounds clamp every sales order subtotal.
	// Default: 200 - 25000
	Bounds BoundsConfig `yaml:"bounds,omitempty" json:"bounds,omitempty"`

	// Categories switch the allocator to weighted size buckets.
	Categories []CategoryConfig `yaml:"categories,omitempty" json:"categories,omitempty"`

	// Trajectory replaces TargetTotal/RecordCount with one target per month.
	Trajectory []PeriodConfig `yaml:"trajectory,omitempty" json:"trajectory,omitempty"`

	// Status weights the order status draw.
	// Default: completed 92, pending 6, cancelled 2
	Status StatusWeights `yaml:"status,omitempty" json:"status,omitempty"`

	// Discount controls the optional per-order discount.
	Discount DiscountConfig `yaml:"discount,omitempty" json:"discount,omitempty"`

	// Parties and catalog sizes.
	Customers int `yaml:"customers,omitempty" json:"customers,omitempty"`
	Suppliers int `yaml:"suppliers,omitempty" json:"suppliers,omitempty"`
	Items     int `yaml:"items,omitempty" json:"items,omitempty"`

	// Purchases configures the purchase order phase.
	Purchases PurchasePlan `yaml:"purchases,omitempty" json:"purchases,omitempty"`

	// Skip lists phases to leave out (customers, suppliers, items,
	// inventory, sales, sales_items, purchases, purchase_items, verify).
	Skip []string `yaml:"skip,omitempty" json:"skip,omitempty"`
}

// BoundsConfig is a closed [min, max] range
type BoundsConfig struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// CategoryConfig is one weighted amount bucket
type CategoryConfig struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
	Min    float64 `yaml:"min" json:"min"`
	Max    float64 `yaml:"max" json:"max"`
}

// PeriodConfig is one month of a growth trajectory
type PeriodConfig struct {
	MonthsAgo int     `yaml:"monthsAgo" json:"monthsAgo"`
	Target    float64 `yaml:"target" json:"target"`
	Count     int     `yaml:"count" json:"count"`
}

// StatusWeights weights order statuses
type StatusWeights struct {
	Completed float64 `yaml:"completed" json:"completed"`
	Pending   float64 `yaml:"pending" json:"pending"`
	Cancelled float64 `yaml:"cancelled" json:"cancelled"`
}

// DiscountConfig controls discounts
type DiscountConfig struct {
	// Probability of any discount. A pointer so 0 disables discounts.
	// Default: 0.25
	Probability *float64 `yaml:"probability,omitempty" json:"probability,omitempty"`
	// Cap is the absolute maximum discount. Default: 200
	Cap float64 `yaml:"cap,omitempty" json:"cap,omitempty"`
	// MaxFraction of the subtotal a discount may reach. Default: 0.1
	MaxFraction float64 `yaml:"maxFraction,omitempty" json:"maxFraction,omitempty"`
}

// PurchasePlan configures purchase orders
type PurchasePlan struct {
	TargetTotal float64      `yaml:"targetTotal" json:"targetTotal"`
	RecordCount int          `yaml:"recordCount" json:"recordCount"`
	Bounds      BoundsConfig `yaml:"bounds,omitempty" json:"bounds,omitempty"`
}

// Overrides carries command-line adjustments to a plan
type Overrides struct {
	TargetTotal            float64
	RecordCount            int
	ChunkSize              int
	InterBatchDelaySeconds float64
	Seed                   int64
}

// LoadPlanFromFile loads a plan from a YAML file.
func LoadPlanFromFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	return LoadPlanFromBytes(data)
}

// LoadPlanFromBytes loads a plan from YAML bytes.
func LoadPlanFromBytes(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}

	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplyOverrides applies non-zero overrides and re-validates.
func (p *Plan) ApplyOverrides(o Overrides) error {
	if !finite(o.TargetTotal) || !finite(o.InterBatchDelaySeconds) {
		return fmt.Errorf("%w: overrides must be finite numbers", ErrInvalidConfig)
	}
	if o.TargetTotal > 0 {
		p.TargetTotal = o.TargetTotal
		p.Trajectory = nil
	}
	if o.RecordCount > 0 {
		p.RecordCount = o.RecordCount
		p.Trajectory = nil
	}
	if o.ChunkSize > 0 {
		p.ChunkSize = o.ChunkSize
	}
	if o.InterBatchDelaySeconds > 0 {
		p.InterBatchDelaySeconds = o.InterBatchDelaySeconds
	}
	if o.Seed != 0 {
		p.Seed = o.Seed
	}
	return p.Validate()
}

// ApplyDefaults applies default values to unset fields.
func (p *Plan) ApplyDefaults() {
	if p.Name == "" {
		p.Name = "default"
	}
	if p.Seed == 0 {
		p.Seed = time.Now().UnixNano()
	}
	if p.CostRatio == 0 {
		p.CostRatio = 0.58
	}
	if p.CostRatioMax == 0 {
		p.CostRatioMax = max(0.70, p.CostRatio)
	}
	if p.TaxRate == nil {
		rate := 0.15
		p.TaxRate = &rate
	}
	if p.ToleranceFraction == 0 {
		p.ToleranceFraction = 0.1
	}
	if p.WindowDays == 0 {
		p.WindowDays = 30
	}
	if p.Bounds == (BoundsConfig{}) {
		p.Bounds = BoundsConfig{Min: 200, Max: 25000}
	}
	if p.Status == (StatusWeights{}) {
		p.Status = StatusWeights{Completed: 92, Pending: 6, Cancelled: 2}
	}
	if p.Discount.Probability == nil {
		prob := 0.25
		p.Discount.Probability = &prob
	}
	if p.Discount.Cap == 0 {
		p.Discount.Cap = 200
	}
	if p.Discount.MaxFraction == 0 {
		p.Discount.MaxFraction = 0.1
	}
	if p.Customers == 0 {
		p.Customers = 15
	}
	if p.Suppliers == 0 {
		p.Suppliers = 15
	}
	if p.Items == 0 {
		p.Items = 22
	}
	if p.Purchases.Bounds == (BoundsConfig{}) {
		p.Purchases.Bounds = BoundsConfig{Min: 1000, Max: 50000}
	}
}

// Validate validates the plan.
func (p *Plan) Validate() error {
	if field := p.nonFinite(); field != "" {
		return fmt.Errorf("%w: %s must be a finite number", ErrInvalidConfig, field)
	}
	if p.TargetTotal < 0 {
		return fmt.Errorf("%w: targetTotal cannot be negative", ErrInvalidConfig)
	}
	if p.RecordCount < 0 {
		return fmt.Errorf("%w: recordCount cannot be negative", ErrInvalidConfig)
	}
	if p.ChunkSize < 0 {
		return fmt.Errorf("%w: chunkSize cannot be negative", ErrInvalidConfig)
	}
	if p.InterBatchDelaySeconds < 0 {
		return fmt.Errorf("%w: interBatchDelaySeconds cannot be negative", ErrInvalidConfig)
	}
	if p.CostRatio <= 0 || p.CostRatioMax > 1 || p.CostRatio > p.CostRatioMax {
		return fmt.Errorf("%w: cost ratio range [%.2f, %.2f] must sit inside (0, 1]",
			ErrInvalidConfig, p.CostRatio, p.CostRatioMax)
	}
	if p.TaxRate != nil && *p.TaxRate < 0 {
		return fmt.Errorf("%w: taxRate cannot be negative", ErrInvalidConfig)
	}
	if p.ToleranceFraction < 0 || p.ToleranceFraction > 1 {
		return fmt.Errorf("%w: toleranceFraction must be between 0 and 1", ErrInvalidConfig)
	}
	if err := p.Bounds.validate("bounds"); err != nil {
		return err
	}
	if err := p.Purchases.Bounds.validate("purchases.bounds"); err != nil {
		return err
	}
	if p.Purchases.TargetTotal < 0 || p.Purchases.RecordCount < 0 {
		return fmt.Errorf("%w: purchases targets cannot be negative", ErrInvalidConfig)
	}
	for i, c := range p.Categories {
		if c.Weight <= 0 {
			return fmt.Errorf("%w: categories[%d].weight must be positive", ErrInvalidConfig, i)
		}
		if c.Min <= 0 || c.Min > c.Max {
			return fmt.Errorf("%w: categories[%d] range [%.2f, %.2f] is invalid", ErrInvalidConfig, i, c.Min, c.Max)
		}
	}
	seen := make(map[int]bool, len(p.Trajectory))
	for i, period := range p.Trajectory {
		if period.MonthsAgo < 0 {
			return fmt.Errorf("%w: trajectory[%d].monthsAgo cannot be negative", ErrInvalidConfig, i)
		}
		if seen[period.MonthsAgo] {
			return fmt.Errorf("%w: duplicate trajectory month %d", ErrInvalidConfig, period.MonthsAgo)
		}
		seen[period.MonthsAgo] = true
		if period.Target < 0 || period.Count < 0 {
			return fmt.Errorf("%w: trajectory[%d] target and count cannot be negative", ErrInvalidConfig, i)
		}
	}
	s := p.Status
	if s.Completed < 0 || s.Pending < 0 || s.Cancelled < 0 || s.Completed+s.Pending+s.Cancelled == 0 {
		return fmt.Errorf("%w: status weights must be non-negative and not all zero", ErrInvalidConfig)
	}
	if prob := p.Discount.Probability; prob != nil && (*prob < 0 || *prob > 1) {
		return fmt.Errorf("%w: discount.probability must be between 0 and 1", ErrInvalidConfig)
	}
	if p.EndDate != "" {
		if _, err := time.Parse(time.DateOnly, p.EndDate); err != nil {
			return fmt.Errorf("%w: endDate: %v", ErrInvalidConfig, err)
		}
	}
	for _, phase := range p.Skip {
		if !knownPhases[phase] {
			return fmt.Errorf("%w: unknown phase %q in skip", ErrInvalidConfig, phase)
		}
	}
	return nil
}

// nonFinite names the first numeric field holding NaN or an infinity.
func (p *Plan) nonFinite() string {
	type field struct {
		name string
		v    float64
	}
	fields := []field{
		{"targetTotal", p.TargetTotal},
		{"interBatchDelaySeconds", p.InterBatchDelaySeconds},
		{"costRatio", p.CostRatio},
		{"costRatioMax", p.CostRatioMax},
		{"toleranceFraction", p.ToleranceFraction},
		{"bounds.min", p.Bounds.Min},
		{"bounds.max", p.Bounds.Max},
		{"purchases.targetTotal", p.Purchases.TargetTotal},
		{"purchases.bounds.min", p.Purchases.Bounds.Min},
		{"purchases.bounds.max", p.Purchases.Bounds.Max},
		{"status.completed", p.Status.Completed},
		{"status.pending", p.Status.Pending},
		{"status.cancelled", p.Status.Cancelled},
		{"discount.cap", p.Discount.Cap},
		{"discount.maxFraction", p.Discount.MaxFraction},
	}
	if p.TaxRate != nil {
		fields = append(fields, field{"taxRate", *p.TaxRate})
	}
	if p.Discount.Probability != nil {
		fields = append(fields, field{"discount.probability", *p.Discount.Probability})
	}
	for _, f := range fields {
		if !finite(f.v) {
			return f.name
		}
	}
	for i, c := range p.Categories {
		if !finite(c.Weight) || !finite(c.Min) || !finite(c.Max) {
			return fmt.Sprintf("categories[%d]", i)
		}
	}
	for i, period := range p.Trajectory {
		if !finite(period.Target) {
			return fmt.Sprintf("trajectory[%d].target", i)
		}
	}
	return ""
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (b BoundsConfig) validate(field string) error {
	if b.Min < 0 || b.Min > b.Max {
		return fmt.Errorf("%w: %s [%.2f, %.2f] is invalid", ErrInvalidConfig, field, b.Min, b.Max)
	}
	return nil
}

var knownPhases = map[string]bool{
	"customers": true, "suppliers": true, "items": true, "inventory": true,
	"sales": true, "sales_items": true, "purchases": true, "purchase_items": true,
	"verify": true,
}

// Skips reports whether phase is disabled
func (p *Plan) Skips(phase string) bool {
	for _, s := range p.Skip {
		if s == phase {
			return true
		}
	}
	return false
}

// End returns the exclusive end of the order window in now's location.
func (p *Plan) End(now time.Time) time.Time {
	if p.EndDate != "" {
		if d, err := time.ParseInLocation(time.DateOnly, p.EndDate, now.Location()); err == nil {
			return d.AddDate(0, 0, 1)
		}
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}

// Start returns the start of the order window.
func (p *Plan) Start(now time.Time) time.Time {
	return p.End(now).AddDate(0, 0, -p.WindowDays)
}

// InterBatchDelay converts InterBatchDelaySeconds, falling back to def.
func (p *Plan) InterBatchDelay(def time.Duration) time.Duration {
	if p.InterBatchDelaySeconds > 0 {
		return time.Duration(p.InterBatchDelaySeconds * float64(time.Second))
	}
	return def
}

// EffectiveChunkSize returns ChunkSize, falling back to def.
func (p *Plan) EffectiveChunkSize(def int) int {
	if p.ChunkSize > 0 {
		return p.ChunkSize
	}
	return def
}
