package checkpoint

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists checkpoints as one document per step, upserted by
// step name, in a dedicated collection of the database being migrated.
type MongoStore struct {
	cache
	coll *mongo.Collection
}

// NewMongoStore creates a checkpoint store backed by coll. Call Load
// before the first Get.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	s := &MongoStore{coll: coll}
	s.checkpoints = make(map[string]*Checkpoint)
	return s
}

// Load reads every persisted checkpoint into the in-memory map.
func (s *MongoStore) Load(ctx context.Context) error {
	cur, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return errors.Wrap(err, "loading checkpoints")
	}
	defer cur.Close(ctx)

	checkpoints := make(map[string]*Checkpoint)
	for cur.Next(ctx) {
		var cp Checkpoint
		if err := cur.Decode(&cp); err != nil {
			return errors.Wrap(err, "decoding checkpoint")
		}
		checkpoints[cp.Step] = &cp
	}
	if err := cur.Err(); err != nil {
		return errors.Wrap(err, "iterating checkpoints")
	}

	s.replace(checkpoints)
	return nil
}

func (s *MongoStore) Get(step string) (*Checkpoint, bool) {
	return s.get(step)
}

func (s *MongoStore) All() []*Checkpoint {
	return s.all()
}

// Save merges update into the cached record for step and upserts the
// full record by step name.
func (s *MongoStore) Save(ctx context.Context, step string, update Update) (*Checkpoint, error) {
	cp := s.merge(step, update)

	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": cp.Step},
		cp,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "saving checkpoint for step %s", step)
	}

	return cp, nil
}

func (s *MongoStore) Close() error {
	// The collection handle belongs to the shared database client.
	return nil
}
