package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerProgress(t *testing.T) {
	tracker := NewTracker()
	tracker.StartStep("legacyUsersStep", 1000, 0)

	tracker.AddBatch(500, 480, 15, 5)
	tracker.AddBatch(500, 500, 0, 0)

	status := tracker.GetStatus()
	assert.Equal(t, "legacyUsersStep", status.Step)
	assert.Equal(t, int64(1000), status.ProcessedDocuments)
	assert.Equal(t, int64(980), status.InsertedDocuments)
	assert.Equal(t, int64(15), status.DuplicateDocuments)
	assert.Equal(t, int64(5), status.ErroredDocuments)
	assert.Equal(t, int64(2), status.Batches)
	assert.InDelta(t, 100.0, tracker.GetProgressPercent(), 0.01)
}

func TestTrackerResumeCarriesProgress(t *testing.T) {
	tracker := NewTracker()
	tracker.StartStep("legacyUsersStep", 1000, 600)

	assert.InDelta(t, 60.0, tracker.GetProgressPercent(), 0.01)

	tracker.AddBatch(400, 400, 0, 0)
	assert.InDelta(t, 100.0, tracker.GetProgressPercent(), 0.01)
}

func TestTrackerZeroTotal(t *testing.T) {
	tracker := NewTracker()
	tracker.StartStep("emptyStep", 0, 0)
	assert.Equal(t, 0.0, tracker.GetProgressPercent())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "calculating...", FormatDuration(0))
	assert.Equal(t, "5s", FormatDuration(5*time.Second))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h1m5s", FormatDuration(3665*time.Second))
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "250 docs/s", FormatRate(250))
	assert.Equal(t, "1.5k docs/s", FormatRate(1500))
}
