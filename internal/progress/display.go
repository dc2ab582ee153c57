package progress

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Display periodically renders tracker state to the terminal
type Display struct {
	tracker  *Tracker
	interval time.Duration
	stopCh   chan struct{}
}

// NewDisplay creates a new progress display
func NewDisplay(tracker *Tracker, interval time.Duration) *Display {
	return &Display{
		tracker:  tracker,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the progress display
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop stops the progress display
func (d *Display) Stop() {
	close(d.stopCh)
}

func (d *Display) displayLoop() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.render(false)
		case <-d.stopCh:
			d.render(true)
			fmt.Println()
			return
		}
	}
}

// render writes a single status line, overwriting the previous one
func (d *Display) render(final bool) {
	status := d.tracker.GetStatus()
	if status.Step == "" {
		return
	}

	percent := d.tracker.GetProgressPercent()
	line := fmt.Sprintf("[%s] %s %.1f%% (%d/%d docs) %s",
		status.Step,
		bar(percent, 24),
		percent,
		status.ProcessedDocuments,
		status.TotalDocuments,
		FormatRate(status.CurrentRate),
	)
	if !final && status.ETA > 0 {
		line += " ETA " + FormatDuration(status.ETA)
	}
	if status.ErroredDocuments > 0 {
		line += fmt.Sprintf(" errors=%d", status.ErroredDocuments)
	}

	// \033[K clears the remainder of the previous, possibly longer line.
	fmt.Printf("\r%s\033[K", line)
}

func bar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

// IsTerminalSupported reports whether stdout is an interactive terminal
func IsTerminalSupported() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
