package checkpoint

import (
	"context"
	"sync"
	"time"
)

// Status represents the lifecycle state of a migration step
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Checkpoint is the persisted progress record for one migration step.
// ProcessedCount counts documents read, not documents successfully
// written. TotalCount is computed once when the step (re)starts and is
// never revised afterwards.
type Checkpoint struct {
	Step            string     `bson:"_id" json:"step"`
	LastProcessedID any        `bson:"last_processed_id,omitempty" json:"last_processed_id,omitempty"`
	ProcessedCount  int64      `bson:"processed_count" json:"processed_count"`
	TotalCount      int64      `bson:"total_count" json:"total_count"`
	Status          Status     `bson:"status" json:"status"`
	Error           string     `bson:"error,omitempty" json:"error,omitempty"`
	StartedAt       *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt     *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	UpdatedAt       time.Time  `bson:"updated_at" json:"updated_at"`
}

// Update is a partial checkpoint mutation. Nil fields keep their current
// value; ResetCursor forces the cursor back to nil regardless of
// LastProcessedID.
type Update struct {
	LastProcessedID any
	ResetCursor     bool
	ProcessedCount  *int64
	TotalCount      *int64
	Status          *Status
	Error           *string
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// Store keeps an in-memory map of per-step checkpoints mirrored to a
// persistent backend. Load reads every persisted record once at startup;
// Save merges a partial update into the cached record (synthesizing a
// fresh pending one when the step has never been seen) and then upserts
// that single record synchronously. Exactly one runner process is assumed
// to mutate a given step's checkpoint at a time.
type Store interface {
	Load(ctx context.Context) error
	Get(step string) (*Checkpoint, bool)
	All() []*Checkpoint
	Save(ctx context.Context, step string, update Update) (*Checkpoint, error)
	Close() error
}

// cache is the in-memory checkpoint map shared by all backends.
type cache struct {
	mu          sync.RWMutex
	checkpoints map[string]*Checkpoint
}

func (c *cache) get(step string) (*Checkpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp, ok := c.checkpoints[step]
	if !ok {
		return nil, false
	}
	snapshot := *cp
	return &snapshot, true
}

func (c *cache) all() []*Checkpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Checkpoint, 0, len(c.checkpoints))
	for _, cp := range c.checkpoints {
		snapshot := *cp
		out = append(out, &snapshot)
	}
	return out
}

func (c *cache) replace(checkpoints map[string]*Checkpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpoints = checkpoints
}

// merge applies update to the cached record for step, creating a fresh
// pending record if none exists, and returns a snapshot of the result.
func (c *cache) merge(step string, update Update) *Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp, ok := c.checkpoints[step]
	if !ok {
		cp = &Checkpoint{Step: step, Status: StatusPending}
		c.checkpoints[step] = cp
	}

	if update.ResetCursor {
		cp.LastProcessedID = nil
	} else if update.LastProcessedID != nil {
		cp.LastProcessedID = update.LastProcessedID
	}
	if update.ProcessedCount != nil {
		cp.ProcessedCount = *update.ProcessedCount
	}
	if update.TotalCount != nil {
		cp.TotalCount = *update.TotalCount
	}
	if update.Status != nil {
		cp.Status = *update.Status
	}
	if update.Error != nil {
		cp.Error = *update.Error
	}
	if update.StartedAt != nil {
		cp.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		cp.CompletedAt = update.CompletedAt
	}
	cp.UpdatedAt = time.Now()

	snapshot := *cp
	return &snapshot
}
