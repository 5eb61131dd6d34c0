package commands

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
	"github.com/paulheiniger/storm-event-leads/internal/pipeline"
)

// ErrPartitionsAbandoned is returned when at least one partition acquired nothing.
var ErrPartitionsAbandoned = errors.New("one or more partitions were abandoned")

// progress prints one line per run log entry. It is safe for concurrent use.
type progress struct {
	mu sync.Mutex
	w  io.Writer
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w}
}

func (p *progress) entry(e domain.RunLogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf("[%s] %-18s %s", e.Partition, e.Step, statusString(e.Status))
	if e.Note != "" {
		line += "  " + e.Note
	}
	fmt.Fprintln(p.w, line)
}

func statusString(s domain.StepStatus) string {
	label := fmt.Sprintf("%-7s", s)
	switch s {
	case domain.StatusOK:
		return color.GreenString(label)
	case domain.StatusFail:
		return color.RedString(label)
	case domain.StatusSkipped:
		return color.YellowString(label)
	default:
		return color.CyanString(label)
	}
}

// printSummary writes one line per partition and returns the error that
// decides the exit code. Failed partitions only warn; abandoned ones fail
// the command.
func printSummary(w io.Writer, reports []pipeline.PartitionReport) error {
	bold := color.New(color.Bold)
	fmt.Fprintln(w)
	_, _ = bold.Fprintln(w, "Summary:")

	abandoned := 0
	for _, r := range reports {
		var outcome string
		switch r.Outcome {
		case pipeline.OutcomeDone:
			outcome = color.GreenString("DONE")
		case pipeline.OutcomeAbandoned:
			outcome = color.RedString("ABANDONED")
			abandoned++
		default:
			outcome = color.YellowString("FAILED")
		}

		fmt.Fprintf(w, "  %-24s %s", r.Partition, outcome)
		if n := r.Skipped(); n > 0 {
			fmt.Fprintf(w, " (%d step(s) skipped)", n)
		}
		if n := r.Count(domain.StepAcquire, domain.StatusFail); n > 0 {
			fmt.Fprintf(w, "  (%d sub-chunk(s) failed)", n)
		}
		if r.Artifact != "" {
			fmt.Fprintf(w, "  -> %s", r.Artifact)
		}
		if r.Outcome == pipeline.OutcomeFailed && r.Err != nil {
			fmt.Fprintf(w, "  %v", r.Err)
		}
		fmt.Fprintln(w)
	}

	if abandoned > 0 {
		return fmt.Errorf("%w: %d of %d", ErrPartitionsAbandoned, abandoned, len(reports))
	}
	return nil
}

func printHistory(w io.Writer, entries []domain.RunLogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No run log entries.")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-26s  %-24s %-18s %s",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.RunID, e.Partition, e.Step, statusString(e.Status))
		if e.Note != "" {
			line += "  " + e.Note
		}
		fmt.Fprintln(w, line)
	}
}
