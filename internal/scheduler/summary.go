package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/biolockgo/internal/stage"
	"github.com/specialistvlad/biolockgo/internal/status"
)

type summaryLine struct {
	stage   string
	outcome string
	runtime time.Duration
	err     error
}

type summary struct {
	runID    string
	pipeline string
	started  time.Time
	lines    []summaryLine
}

func (s *summary) completed(d stage.Descriptor, runtime time.Duration) {
	s.lines = append(s.lines, summaryLine{stage: d.Name(), outcome: "complete", runtime: runtime})
}

func (s *summary) skipped(d stage.Descriptor) {
	s.lines = append(s.lines, summaryLine{stage: d.Name(), outcome: "previously completed"})
}

func (s *summary) failed(d stage.Descriptor, err error) {
	s.lines = append(s.lines, summaryLine{stage: d.Name(), outcome: "failed", err: err})
}

func (s *summary) render(outcome status.State, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline %s (run %s): %s\n", s.pipeline, s.runID, strings.ToUpper(outcome.String()))
	fmt.Fprintf(&b, "Total runtime: %s\n", formatRuntime(now.Sub(s.started)))
	for _, l := range s.lines {
		switch {
		case l.err != nil:
			fmt.Fprintf(&b, "%s: %s: %v\n", l.stage, l.outcome, l.err)
		case l.outcome == "complete":
			fmt.Fprintf(&b, "%s: %s in %s\n", l.stage, l.outcome, formatRuntime(l.runtime))
		default:
			fmt.Fprintf(&b, "%s: %s\n", l.stage, l.outcome)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// formatRuntime renders d as "HH hours : MM minutes : SS seconds".
func formatRuntime(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d hours : %02d minutes : %02d seconds", secs/3600, secs%3600/60, secs%60)
}
