// Package store wraps the document database. Handlers talk to the
// DocumentStore interface so tests can run against an in-memory stub; the
// Mongo implementation is the production path and executes the rewritten
// aggregation plans server-side.
package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// DocumentStore is the narrow surface the gateway needs from the database.
type DocumentStore interface {
	// Aggregate runs a pipeline against the resource's collection and
	// returns all result documents.
	Aggregate(ctx context.Context, resource string, plan mongo.Pipeline) ([]bson.M, error)
	// Insert stores a new document and returns its id.
	Insert(ctx context.Context, resource string, doc bson.M) (bson.ObjectID, error)
	// Patch applies a $set of the given fields to one document.
	Patch(ctx context.Context, resource string, id bson.ObjectID, updates bson.M) error
	// Delete removes one document.
	Delete(ctx context.Context, resource string, id bson.ObjectID) error
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
}

// ErrNotFound is returned by Patch and Delete when the target document does
// not exist.
var ErrNotFound = fmt.Errorf("document not found")
