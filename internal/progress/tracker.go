package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status represents the current migration status
type Status struct {
	Step               string
	TotalDocuments     int64
	ProcessedDocuments int64
	InsertedDocuments  int64
	DuplicateDocuments int64
	ErroredDocuments   int64
	Batches            int64
	StartTime          time.Time
	LastUpdateTime     time.Time
	CurrentRate        float64 // documents/second over the recent window
	AverageRate        float64 // documents/second since step start
	ETA                time.Duration
}

// Tracker tracks migration progress for the step currently running
type Tracker struct {
	mu         sync.RWMutex
	status     Status
	samples    []rateSample
	maxSamples int
}

type rateSample struct {
	timestamp time.Time
	documents int64
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	return &Tracker{
		samples:    make([]rateSample, 0, 60),
		maxSamples: 60,
	}
}

// StartStep resets the tracker for a new step. processed carries over the
// prior progress when the step is resumed.
func (t *Tracker) StartStep(step string, total, processed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = Status{
		Step:               step,
		TotalDocuments:     total,
		ProcessedDocuments: processed,
		StartTime:          time.Now(),
		LastUpdateTime:     time.Now(),
	}
	t.samples = t.samples[:0]
}

// AddBatch records one processed batch
func (t *Tracker) AddBatch(processed, inserted, duplicates, errored int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.ProcessedDocuments += processed
	t.status.InsertedDocuments += inserted
	t.status.DuplicateDocuments += duplicates
	t.status.ErroredDocuments += errored
	t.status.Batches++
	t.updateRate(processed)
}

// updateRate updates the rate calculation (must be called with lock held)
func (t *Tracker) updateRate(documents int64) {
	now := time.Now()

	t.samples = append(t.samples, rateSample{timestamp: now, documents: documents})
	if len(t.samples) > t.maxSamples {
		t.samples = t.samples[1:]
	}

	t.calculateCurrentRate(now)
	t.calculateAverageRate(now)
	t.calculateETA()

	t.status.LastUpdateTime = now
}

// calculateCurrentRate uses samples from the last five seconds
func (t *Tracker) calculateCurrentRate(now time.Time) {
	if len(t.samples) < 2 {
		t.status.CurrentRate = 0
		return
	}

	cutoff := now.Add(-5 * time.Second)
	var recentDocs int64
	var first *rateSample

	for i := len(t.samples) - 1; i >= 0; i-- {
		sample := &t.samples[i]
		if sample.timestamp.Before(cutoff) {
			break
		}
		recentDocs += sample.documents
		first = sample
	}

	if first != nil {
		window := now.Sub(first.timestamp)
		if window > 0 {
			t.status.CurrentRate = float64(recentDocs) / window.Seconds()
		}
	}
}

func (t *Tracker) calculateAverageRate(now time.Time) {
	elapsed := now.Sub(t.status.StartTime)
	if elapsed > 0 {
		t.status.AverageRate = float64(t.status.ProcessedDocuments) / elapsed.Seconds()
	}
}

func (t *Tracker) calculateETA() {
	if t.status.TotalDocuments == 0 || t.status.AverageRate == 0 {
		t.status.ETA = 0
		return
	}

	remaining := t.status.TotalDocuments - t.status.ProcessedDocuments
	if remaining <= 0 {
		t.status.ETA = 0
		return
	}

	etaSeconds := float64(remaining) / t.status.AverageRate
	t.status.ETA = time.Duration(etaSeconds) * time.Second
}

// GetStatus returns the current status (thread-safe)
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// GetProgressPercent returns the progress percentage
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalDocuments == 0 {
		return 0
	}

	return float64(t.status.ProcessedDocuments) / float64(t.status.TotalDocuments) * 100
}

// FormatRate formats a documents/second rate in human readable form
func FormatRate(docsPerSecond float64) string {
	if docsPerSecond < 1000 {
		return fmt.Sprintf("%.0f docs/s", docsPerSecond)
	}
	return fmt.Sprintf("%.1fk docs/s", docsPerSecond/1000)
}

// FormatDuration formats duration in human readable format
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "calculating..."
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
