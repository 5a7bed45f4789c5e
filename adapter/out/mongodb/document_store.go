// Package mongodb adapts the Persistence Gateway (§4.B) and Blob/Model Store
// (§4.C) abstract contracts onto a concrete MongoDB backend, generalized
// from the teacher's worker_mongo_client.go connection wiring.
package mongodb

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/apperr"
)

// Store implements out.DocumentStore over a single Mongo database, one
// collection per name in out.Collection*. Set enforces insert-if-absent
// semantics on messages so a second process_inbox attempt for the same
// message_id is a no-op (§4.B, §8's at-most-once invariant); every other
// collection upserts by id.
type Store struct {
	db *mongo.Database
}

func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

// EnsureIndexes creates the compound indexes §4.B names. Call once at
// startup; CreateOne is a no-op for an index that already exists with the
// same keys and options.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	messages := s.db.Collection(out.CollectionMessages)
	if _, err := messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "message_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return apperr.DatabaseError("create messages index", err)
	}

	feedback := s.db.Collection(out.CollectionFeedback)
	if _, err := feedback.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "sender_key", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return apperr.DatabaseError("create feedback index", err)
	}

	actions := s.db.Collection(out.CollectionActionRequests)
	if _, err := actions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}},
	}); err != nil {
		return apperr.DatabaseError("create action_requests index", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, collection, id string, into interface{}) error {
	raw, err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Raw()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return apperr.NotFound(collection + " document")
		}
		return apperr.DatabaseError("GetByID", err)
	}
	return bson.Unmarshal(raw, into)
}

func (s *Store) Set(ctx context.Context, collection, id string, doc interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return apperr.InternalWithError(err)
	}
	var body bson.M
	if err := bson.Unmarshal(raw, &body); err != nil {
		return apperr.InternalWithError(err)
	}
	body["_id"] = id

	if collection == out.CollectionMessages {
		existing := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id})
		if existing.Err() == nil {
			return nil // at-most-once persist per message_id (§8)
		}
		if existing.Err() != mongo.ErrNoDocuments {
			return apperr.DatabaseError("Set", existing.Err())
		}
	}

	opts := options.Replace().SetUpsert(true)
	_, err = s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, body, opts)
	if err != nil {
		return apperr.DatabaseError("Set", err)
	}
	return nil
}

// PartialUpdate applies a $set-only merge, never a full-document overwrite
// (§5's "full-document overwrites are forbidden" for user profiles, applied
// here uniformly since nothing in the port distinguishes collections).
func (s *Store) PartialUpdate(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	update := bson.M{"$set": fields}
	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update, opts)
	if err != nil {
		return apperr.DatabaseError("PartialUpdate", err)
	}
	return nil
}

func (s *Store) Where(ctx context.Context, collection string, filter out.Filter, order []out.OrderBy, limit int, fn func(raw []byte) error) error {
	findOpts := options.Find()
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	if len(order) > 0 {
		sort := bson.D{}
		for _, o := range order {
			dir := 1
			if o.Descending {
				dir = -1
			}
			sort = append(sort, bson.E{Key: o.Field, Value: dir})
		}
		findOpts.SetSort(sort)
	}

	mongoFilter := bson.M{}
	for k, v := range filter {
		mongoFilter[k] = v
	}

	cur, err := s.db.Collection(collection).Find(ctx, mongoFilter, findOpts)
	if err != nil {
		return apperr.DatabaseError("Where", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		doc := bson.M{}
		if err := cur.Decode(&doc); err != nil {
			return apperr.InternalWithError(err)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return apperr.InternalWithError(err)
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	return cur.Err()
}

func (s *Store) Count(ctx context.Context, collection string, filter out.Filter) (int64, error) {
	mongoFilter := bson.M{}
	for k, v := range filter {
		mongoFilter[k] = v
	}
	n, err := s.db.Collection(collection).CountDocuments(ctx, mongoFilter)
	if err != nil {
		return 0, apperr.DatabaseError("Count", err)
	}
	return n, nil
}

// Ping verifies connectivity for the /readyz check (§4.R).
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.Client().Ping(ctx, nil)
}
