package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore implements DocumentStore on a Mongo database. One collection
// per resource; write endpoints named "<resource>_write" share the read
// endpoint's collection.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Auth carries optional database credentials.
type Auth struct {
	Username   string
	Password   string
	AuthSource string
}

// NewMongoStore connects to the database at host (a mongodb:// URI or bare
// host) and selects dbName.
func NewMongoStore(host, dbName string, auth Auth) (*MongoStore, error) {
	uri := host
	if uri == "" {
		return nil, fmt.Errorf("database host required")
	}
	opts := options.Client().ApplyURI(uri)
	if auth.Username != "" {
		opts = opts.SetAuth(options.Credential{
			Username:   auth.Username,
			Password:   auth.Password,
			AuthSource: auth.AuthSource,
		})
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(dbName)}, nil
}

// Close releases the client's connection pool.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Database exposes the underlying handle for collaborators that read their
// own collections, like the principal directory.
func (s *MongoStore) Database() *mongo.Database {
	return s.db
}

func (s *MongoStore) Aggregate(ctx context.Context, resource string, plan mongo.Pipeline) ([]bson.M, error) {
	cursor, err := s.db.Collection(resource).Aggregate(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", resource, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read aggregation results for %s: %w", resource, err)
	}
	return docs, nil
}

func (s *MongoStore) Insert(ctx context.Context, resource string, doc bson.M) (bson.ObjectID, error) {
	res, err := s.db.Collection(resource).InsertOne(ctx, doc)
	if err != nil {
		return bson.NilObjectID, fmt.Errorf("insert into %s: %w", resource, err)
	}
	id, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return bson.NilObjectID, fmt.Errorf("insert into %s: unexpected id type %T", resource, res.InsertedID)
	}
	return id, nil
}

func (s *MongoStore) Patch(ctx context.Context, resource string, id bson.ObjectID, updates bson.M) error {
	res, err := s.db.Collection(resource).UpdateByID(ctx, id, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("patch %s/%s: %w", resource, id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, resource string, id bson.ObjectID) error {
	res, err := s.db.Collection(resource).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", resource, id.Hex(), err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
