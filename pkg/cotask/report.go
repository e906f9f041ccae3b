package cotask

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// WriteReport writes a table of tasks and their statistics.
func (s *Scheduler) WriteReport(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tPRI\tPERIOD\tRUNS\tFAIL\tOVERRUN\tAVG DUR\tMAX DUR\tSTD DUR\tAVG LATE\tMAX LATE")
	for _, t := range s.Tasks() {
		st := t.Stats()
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			t.Name(), t.Priority(), formatPeriod(t.Period()),
			st.Runs, st.Failures, st.Overruns,
			formatDur(st.AvgDuration), formatDur(st.MaxDuration), formatDur(st.StdDuration),
			formatDur(st.AvgLate), formatDur(st.MaxLate))
	}
	return tw.Flush()
}

// WriteTrace writes the state changes of a task, one per line, with time
// relative to the first point.
func WriteTrace(w io.Writer, t *Task) error {
	points := t.Trace()
	if len(points) == 0 {
		_, err := fmt.Fprintf(w, "%s: no trace\n", t.Name())
		return err
	}
	if _, err := fmt.Fprintf(w, "%s:\n", t.Name()); err != nil {
		return err
	}
	start := points[0].Time
	for _, pt := range points {
		if _, err := fmt.Fprintf(w, "  %12s  %d\n", formatDur(pt.Time.Sub(start)), pt.State); err != nil {
			return err
		}
	}
	return nil
}

func formatPeriod(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.String()
}

func formatDur(d time.Duration) string {
	return d.Round(time.Microsecond).String()
}
