package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/erp/seeder/internal/config"
)

func newPlanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect scenario plans",
	}
	cmd.AddCommand(newPlanValidateCmd(a))
	return cmd
}

func newPlanValidateCmd(a *app) *cobra.Command {
	var planPath string
	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Check a plan and print what it would generate",
		Annotations: map[string]string{annotationNoSettings: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := config.LoadPlanFromFile(planPath)
			if err != nil {
				return err
			}
			describePlan(cmd.OutOrStdout(), plan, time.Now(), !a.noColor)
			return nil
		},
	}
	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "scenario plan file (required)")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func describePlan(w io.Writer, p *config.Plan, now time.Time, useColor bool) {
	ok := color.New(color.FgGreen, color.Bold)
	label := color.New(color.FgCyan)
	if !useColor {
		ok.DisableColor()
		label.DisableColor()
	}

	ok.Fprintf(w, "plan %q is valid\n", p.Name)
	field := func(name, format string, args ...any) {
		label.Fprintf(w, "  %-14s", name)
		fmt.Fprintf(w, format+"\n", args...)
	}
	field("seed", "%d", p.Seed)
	if len(p.Trajectory) > 0 {
		for _, period := range p.Trajectory {
			field(fmt.Sprintf("month -%d", period.MonthsAgo), "%.2f over %d orders", period.Target, period.Count)
		}
	} else {
		field("target", "%.2f over %d orders", p.TargetTotal, p.RecordCount)
		field("window", "%s .. %s",
			p.Start(now).Format(time.DateOnly),
			p.End(now).AddDate(0, 0, -1).Format(time.DateOnly))
	}
	field("bounds", "%.2f - %.2f", p.Bounds.Min, p.Bounds.Max)
	field("cost ratio", "%.2f - %.2f", p.CostRatio, p.CostRatioMax)
	if p.TaxRate != nil {
		field("tax rate", "%.2f", *p.TaxRate)
	}
	field("tolerance", "%.1f%%", p.ToleranceFraction*100)
	field("parties", "%d customers, %d suppliers, %d items", p.Customers, p.Suppliers, p.Items)
	if p.Purchases.RecordCount > 0 {
		field("purchases", "%.2f over %d orders", p.Purchases.TargetTotal, p.Purchases.RecordCount)
	}
	if len(p.Skip) > 0 {
		field("skip", "%v", p.Skip)
	}
}
