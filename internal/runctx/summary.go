package runctx

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// PhaseSummary counts outcomes for one phase.
type PhaseSummary struct {
	Phase     Phase
	Succeeded int
	Failed    int
	Skipped   int
}

// Summary is the end-of-run report.
type Summary struct {
	RunID    string
	Duration time.Duration
	Phases   []PhaseSummary
	Failures []Outcome
}

// Summary aggregates the recorded outcomes.
func (r *Run) Summary() Summary {
	byPhase := make(map[Phase]*PhaseSummary, len(Phases))
	s := Summary{
		RunID:    r.ID,
		Duration: r.now().Sub(r.Started),
		Phases:   make([]PhaseSummary, len(Phases)),
	}
	for i, p := range Phases {
		s.Phases[i].Phase = p
		byPhase[p] = &s.Phases[i]
	}

	for _, o := range r.outcomes {
		ps := byPhase[o.Phase]
		if ps == nil {
			continue
		}
		switch o.Status {
		case StatusSucceeded:
			ps.Succeeded++
		case StatusFailed:
			ps.Failed++
			s.Failures = append(s.Failures, o)
		case StatusSkipped:
			ps.Skipped++
		}
	}
	r.duration.Set(s.Duration.Seconds())
	return s
}

// Phase returns the counts for one phase.
func (s Summary) Phase(p Phase) PhaseSummary {
	for _, ps := range s.Phases {
		if ps.Phase == p {
			return ps
		}
	}
	return PhaseSummary{Phase: p}
}

// FailedTotal is the number of failed units across phases.
func (s Summary) FailedTotal() int {
	return len(s.Failures)
}

// Render formats the summary as a terminal table.
func (s Summary) Render() string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PHASE", "SUCCEEDED", "FAILED", "SKIPPED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	for _, ps := range s.Phases {
		t.Row(string(ps.Phase), strconv.Itoa(ps.Succeeded), strconv.Itoa(ps.Failed), strconv.Itoa(ps.Skipped))
	}

	out := "Run " + s.RunID + " finished in " + s.Duration.Round(time.Millisecond).String() + "\n" + t.String() + "\n"
	for _, f := range s.Failures {
		out += "  FAILED " + string(f.Phase) + " " + f.Unit + ": " + f.Reason + "\n"
	}
	return out
}

// Log emits the summary as one structured event per phase.
func (r *Run) Log(s Summary) {
	for _, ps := range s.Phases {
		r.Logger.Info("phase summary",
			"phase", string(ps.Phase),
			"succeeded", ps.Succeeded,
			"failed", ps.Failed,
			"skipped", ps.Skipped,
		)
	}
	r.Logger.Info("run finished", "duration", s.Duration, "failures", s.FailedTotal())
}
