package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressBar tracks rows processed by a long-running operation. A total
// of zero renders a plain counter.
type ProgressBar struct {
	mu      sync.Mutex
	writer  io.Writer
	palette *Palette
	total   int64
	current int64
	failed  int
	message string
	width   int
	done    bool
}

// NewProgressBar creates a new progress bar
func NewProgressBar(w io.Writer, palette *Palette, total int64, message string) *ProgressBar {
	if palette == nil {
		palette = &Palette{}
	}
	return &ProgressBar{writer: w, palette: palette, total: total, message: message, width: 30}
}

// Add advances the bar by n rows. failed counts the step as a failure.
func (pb *ProgressBar) Add(n int, failed bool) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.done {
		return
	}
	pb.current += int64(n)
	if failed {
		pb.failed++
	}
	pb.render()
}

// SetMessage replaces the trailing message
func (pb *ProgressBar) SetMessage(message string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.message = message
	pb.render()
}

// Finish renders the final state and ends the line
func (pb *ProgressBar) Finish(message string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.done {
		return
	}
	if message != "" {
		pb.message = message
	}
	pb.render()
	fmt.Fprintln(pb.writer)
	pb.done = true
}

// String returns the current bar without control characters
func (pb *ProgressBar) String() string {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.line(false)
}

func (pb *ProgressBar) render() {
	fmt.Fprint(pb.writer, "\r\033[K"+pb.line(true))
}

func (pb *ProgressBar) line(colored bool) string {
	var b strings.Builder
	if pb.total > 0 {
		current := pb.current
		if current > pb.total {
			current = pb.total
		}
		filled := int(int64(pb.width) * current / pb.total)
		bar := strings.Repeat("=", filled)
		if filled < pb.width {
			bar += ">" + strings.Repeat(" ", pb.width-filled-1)
		}
		if colored {
			bar = pb.palette.Primary(bar)
		}
		fmt.Fprintf(&b, "[%s] %3d%% %d/%d rows", bar, current*100/pb.total, current, pb.total)
	} else {
		fmt.Fprintf(&b, "%d rows", pb.current)
	}

	if pb.failed > 0 {
		failed := fmt.Sprintf("%d failed", pb.failed)
		if colored {
			failed = pb.palette.Error(failed)
		}
		b.WriteString("  " + failed)
	}
	if pb.message != "" {
		b.WriteString("  " + pb.message)
	}
	return b.String()
}
