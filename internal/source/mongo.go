package source

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCollection implements Collection against a MongoDB collection,
// paging on _id ascending.
type MongoCollection struct {
	coll *mongo.Collection
}

// NewMongoCollection creates a batch iterator over the given collection.
func NewMongoCollection(coll *mongo.Collection) *MongoCollection {
	return &MongoCollection{coll: coll}
}

// Name returns the collection name.
func (c *MongoCollection) Name() string {
	return c.coll.Name()
}

// Count returns the total document count.
func (c *MongoCollection) Count(ctx context.Context) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, errors.Wrapf(err, "counting %s", c.coll.Name())
	}
	return n, nil
}

// NextBatch fetches the next page of documents with _id strictly greater
// than after, sorted ascending.
func (c *MongoCollection) NextBatch(ctx context.Context, after any, limit int) ([]Document, error) {
	filter := bson.M{}
	if after != nil {
		filter["_id"] = bson.M{"$gt": after}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching batch from %s", c.coll.Name())
	}
	defer cur.Close(ctx)

	var batch []Document
	for cur.Next(ctx) {
		raw := make(bson.Raw, len(cur.Current))
		copy(raw, cur.Current)

		var key struct {
			ID any `bson:"_id"`
		}
		if err := bson.Unmarshal(raw, &key); err != nil {
			return nil, errors.Wrapf(err, "decoding _id from %s", c.coll.Name())
		}

		batch = append(batch, Document{ID: key.ID, Raw: raw})
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterating batch from %s", c.coll.Name())
	}

	return batch, nil
}
