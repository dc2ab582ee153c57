package app

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"legacy2norm/internal/runner"
	"legacy2norm/internal/source"
)

// copyProcessor builds the default processor for configured steps: each
// source document is upserted into the target collection keyed by its
// legacy _id plus the step's source tag. The key is migration-stable, so
// re-processing a batch after a crash converges on the same target state.
// Library users replace this with their own mapping processors.
func (m *Migrator) copyProcessor(target, tag string) runner.Processor {
	var coll *mongo.Collection

	return func(ctx context.Context, batch []source.Document, dryRun bool) ([]runner.BatchResult, error) {
		if coll == nil {
			coll = m.db.Database().Collection(target)
		}

		results := make([]runner.BatchResult, len(batch))
		for i, doc := range batch {
			var payload bson.M
			if err := bson.Unmarshal(doc.Raw, &payload); err != nil {
				results[i] = runner.BatchResult{Outcome: runner.OutcomeErrored, Err: err}
				continue
			}

			if dryRun {
				// Decode-only validation; the zero value leaves the
				// document as skipped.
				continue
			}

			delete(payload, "_id")
			payload["legacy_id"] = doc.ID
			payload["source"] = tag

			res, err := coll.UpdateOne(ctx,
				bson.M{"legacy_id": doc.ID, "source": tag},
				bson.M{"$set": payload},
				options.Update().SetUpsert(true),
			)
			if err != nil {
				if mongo.IsDuplicateKeyError(err) {
					results[i] = runner.BatchResult{Outcome: runner.OutcomeDuplicate}
					continue
				}
				results[i] = runner.BatchResult{Outcome: runner.OutcomeErrored, Err: err}
				continue
			}

			if res.UpsertedCount > 0 {
				results[i] = runner.BatchResult{Outcome: runner.OutcomeInserted}
			} else {
				results[i] = runner.BatchResult{Outcome: runner.OutcomeDuplicate}
			}
		}

		return results, nil
	}
}
