package registration

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ProgressFunc receives the number of completed units out of total.
type ProgressFunc func(completed, total int)

// progress counts completed units across goroutines. The increment is
// atomic; the call into the sink is serialised so reports never interleave
// or run backwards.
type progress struct {
	count atomic.Int64
	total int
	mu    sync.Mutex
	last  int64
	sink  ProgressFunc
}

func newProgress(total int, sink ProgressFunc) *progress {
	return &progress{total: total, sink: sink}
}

// step records one completed unit and reports it.
func (p *progress) step() {
	n := p.count.Add(1)
	if p.sink == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// A goroutine that incremented earlier may reach the lock later; report
	// the highest count seen so far instead of going backwards.
	if n < p.last {
		n = p.last
	} else {
		p.last = n
	}
	p.sink(int(n), p.total)
}

// ConsoleProgress returns a ProgressFunc drawing a text progress bar with
// elapsed and estimated remaining time on w.
func ConsoleProgress(w io.Writer) ProgressFunc {
	start := time.Now()
	const width = 40

	return func(completed, total int) {
		if total <= 0 {
			return
		}
		percentage := float64(completed) / float64(total) * 100
		numBars := int(percentage / 100 * width)

		var bar strings.Builder
		bar.WriteString("[")
		for i := 0; i < width; i++ {
			switch {
			case i < numBars:
				bar.WriteString("█")
			case i == numBars:
				bar.WriteString("▓")
			default:
				bar.WriteString("░")
			}
		}
		bar.WriteString("]")

		elapsed := time.Since(start)
		remaining := "0s"
		if completed > 0 && completed < total {
			perUnit := elapsed.Seconds() / float64(completed)
			remaining = formatSeconds(perUnit * float64(total-completed))
		}

		fmt.Fprintf(w, "\r%s %.1f%% (%d/%d) [%.1fs elapsed | %s remaining]",
			bar.String(), percentage, completed, total, elapsed.Seconds(), remaining)
		if completed >= total {
			fmt.Fprintln(w)
		}
	}
}

func formatSeconds(s float64) string {
	switch {
	case s < 60:
		return fmt.Sprintf("%.1fs", s)
	case s < 3600:
		return fmt.Sprintf("%.1fm", s/60)
	default:
		return fmt.Sprintf("%.1fh", s/3600)
	}
}
