package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements DocumentStore on MongoDB. Transactions need a
// replica set or sharded cluster.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    logrus.FieldLogger
}

func NewMongoStore(ctx context.Context, uri, database string, log logrus.FieldLogger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	log.WithField("database", database).Info("Connected to MongoDB")
	return &MongoStore{client: client, db: client.Database(database), log: log}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the services rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(Users).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users username index: %w", err)
	}
	_, err = s.db.Collection(Badges).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("badges owner index: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, collection string, doc any) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (s *MongoStore) Get(ctx context.Context, collection, id string, out any) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (s *MongoStore) Find(ctx context.Context, collection string, q Query, out any) error {
	filter := bson.M{}
	if len(q.IDs) > 0 {
		filter["_id"] = bson.M{"$in": q.IDs}
	}
	for k, v := range q.Equals {
		filter[k] = v
	}
	for k, v := range q.Contains {
		// An equality match on an array field matches any element.
		filter[k] = v
	}
	cursor, err := s.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(mongoSort(q)))
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
}

func (s *MongoStore) AtomicUpdate(ctx context.Context, collection, id string, p Patch) (UpdateResult, error) {
	coll := s.db.Collection(collection)
	filter := mongoFilter(id, p.Require)
	update := mongoUpdate(p.Ops)

	if len(update) == 0 {
		n, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return UpdateResult{}, err
		}
		if n == 0 {
			return UpdateResult{}, s.missOrCondition(ctx, coll, id)
		}
		return UpdateResult{}, nil
	}

	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return UpdateResult{}, err
	}
	if res.MatchedCount == 0 {
		return UpdateResult{}, s.missOrCondition(ctx, coll, id)
	}
	return UpdateResult{Modified: res.ModifiedCount > 0}, nil
}

// missOrCondition tells apart a missing document from a failed precondition
// after an update matched nothing.
func (s *MongoStore) missOrCondition(ctx context.Context, coll *mongo.Collection, id string) error {
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConditionFailed
}

func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func mongoSort(q Query) bson.D {
	if q.SortBy == "" || q.SortBy == "_id" {
		return bson.D{{Key: "_id", Value: 1}}
	}
	return bson.D{{Key: q.SortBy, Value: 1}, {Key: "_id", Value: 1}}
}

func mongoFilter(id string, conds []Condition) bson.M {
	if len(conds) == 0 {
		return bson.M{"_id": id}
	}
	and := bson.A{bson.M{"_id": id}}
	for _, c := range conds {
		switch c.kind {
		case condContains:
			and = append(and, bson.M{c.field.path(): c.key})
		case condNotContains:
			and = append(and, bson.M{c.field.path(): bson.M{"$ne": c.key}})
		}
	}
	return bson.M{"$and": and}
}

func mongoUpdate(ops []Op) bson.M {
	update := bson.M{}
	group := func(op string) bson.M {
		m, ok := update[op].(bson.M)
		if !ok {
			m = bson.M{}
			update[op] = m
		}
		return m
	}
	for _, op := range ops {
		switch op.kind {
		case opAdd:
			if op.field.KeyPath == "" {
				group("$addToSet")[op.field.Name] = op.key
			} else {
				group("$push")[op.field.Name] = op.value
			}
		case opRemove:
			if op.field.KeyPath == "" {
				group("$pull")[op.field.Name] = op.key
			} else {
				group("$pull")[op.field.Name] = bson.M{op.field.KeyPath: op.key}
			}
		case opAppend:
			group("$push")[op.field.Name] = op.value
		case opSet:
			group("$set")[op.field.Name] = op.value
		}
	}
	return update
}
