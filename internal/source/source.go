package source

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Document is a single raw record read from a source collection. The
// migration engine never looks inside Raw; only the processor does. ID is
// the ascending primary key the batch cursor pages on.
type Document struct {
	ID  any
	Raw bson.Raw
}

// Collection pages through one source collection in ascending primary-key
// order. Cursor values handed back by NextBatch are opaque to callers and
// are only ever passed back into NextBatch (or persisted in a checkpoint).
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Count returns the total number of documents in the collection.
	Count(ctx context.Context) (int64, error)

	// NextBatch returns up to limit documents whose primary key is
	// strictly greater than after, in ascending key order. A nil after
	// starts from the beginning. An empty slice means the collection is
	// exhausted.
	NextBatch(ctx context.Context, after any, limit int) ([]Document, error)
}

// Opener hands out batch iterators for source collections by name.
type Opener interface {
	Collection(name string) Collection
}
