package summary

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

type palette struct {
	title *color.Color
	ok    *color.Color
	warn  *color.Color
	bad   *color.Color
	dim   *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		title: color.New(color.FgCyan, color.Bold),
		ok:    color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		bad:   color.New(color.FgRed, color.Bold),
		dim:   color.New(color.FgHiBlack),
	}
	if !enabled {
		for _, c := range []*color.Color{p.title, p.ok, p.warn, p.bad, p.dim} {
			c.DisableColor()
		}
	}
	return p
}

// WriteConsole prints a human readable summary.
func WriteConsole(w io.Writer, s *Summary, useColor bool) {
	p := newPalette(useColor)

	p.title.Fprintf(w, "Seeding run %s", s.RunID)
	if s.Plan != "" {
		fmt.Fprintf(w, " (%s, seed %d)", s.Plan, s.Seed)
	}
	fmt.Fprintln(w)
	p.dim.Fprintf(w, "  duration %s\n", s.Duration().Round(time.Millisecond))
	if !s.Target.IsZero() {
		fmt.Fprintf(w, "  target %s, generated %s\n", s.Target.StringFixed(2), s.Generated.StringFixed(2))
	}

	fmt.Fprintln(w)
	p.title.Fprintln(w, "Uploads")
	fmt.Fprintf(w, "  %-22s %8s %10s %8s %8s %8s\n", "TABLE", "RECORDS", "SUCCEEDED", "FAILED", "SKIPPED", "PENDING")
	for _, r := range s.Uploads {
		line := fmt.Sprintf("  %-22s %8d %10d %8d %8d %8d", r.Table, r.Total, r.Succeeded, r.Failed, r.Skipped, r.NotAttempted)
		switch {
		case r.Failed > 0 || r.NotAttempted > 0:
			p.bad.Fprintln(w, line)
		case r.Skipped > 0:
			p.warn.Fprintln(w, line)
		default:
			p.ok.Fprintln(w, line)
		}
	}
	t := s.Totals()
	fmt.Fprintf(w, "  %-22s %8d %10d %8d %8d %8d\n", "total", t.Records, t.Succeeded, t.Failed, t.Skipped, t.NotAttempted)

	if len(s.Verification) > 0 {
		fmt.Fprintln(w)
		p.title.Fprintln(w, "Verification")
		for _, v := range s.Verification {
			mark, c := "ok", p.ok
			if !v.WithinTolerance {
				mark, c = "FAIL", p.bad
			}
			c.Fprintf(w, "  [%s] %s: achieved %s, expected %s, delta %s (%.2f%%)\n",
				mark, v.Check, v.Achieved.StringFixed(2), v.Expected.StringFixed(2),
				v.Delta.StringFixed(2), v.DeltaFraction*100)
		}
	}

	if len(s.PhaseErrors) > 0 {
		fmt.Fprintln(w)
		p.title.Fprintln(w, "Halted phases")
		for _, pe := range s.PhaseErrors {
			p.bad.Fprintf(w, "  %s: %v\n", pe.Phase, pe.Err)
		}
	}
}
