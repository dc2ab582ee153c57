package checkpoint

import "context"

// MemoryStore is an ephemeral Store with no persistent backend. Useful
// for tests and throwaway runs where progress does not need to survive
// the process.
type MemoryStore struct {
	cache
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.checkpoints = make(map[string]*Checkpoint)
	return s
}

func (s *MemoryStore) Load(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Get(step string) (*Checkpoint, bool) {
	return s.get(step)
}

func (s *MemoryStore) All() []*Checkpoint {
	return s.all()
}

func (s *MemoryStore) Save(ctx context.Context, step string, update Update) (*Checkpoint, error) {
	return s.merge(step, update), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
