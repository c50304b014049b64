package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
)

// progressLine redraws a single terminal line for upload progress and ends it once the
// total is reached.
type progressLine struct {
	mu       sync.Mutex
	w        io.Writer
	label    string
	started  bool
	finished bool
}

func newProgressLine(w io.Writer, label string) *progressLine {
	return &progressLine{w: w, label: label}
}

func (p *progressLine) Report(done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	pct := 100
	if total > 0 {
		pct = int(done * 100 / total)
	}
	fmt.Fprintf(p.w, "\r%s  %s / %s  (%d%%)", p.label, humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)), pct)
	p.started = true
	if done >= total {
		fmt.Fprintln(p.w)
		p.finished = true
	}
}

// Finish terminates a line left open by an interrupted upload.
func (p *progressLine) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started && !p.finished {
		fmt.Fprintln(p.w)
		p.finished = true
	}
}
