// Package principal resolves an authenticated subject to its cleared
// categories and dissemination rights. The database-backed directory is the
// production path; the static directory mirrors a fixed permission table and
// serves tests and local development.
package principal

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"charon/internal/label"
)

// Directory looks up a permissions record by subject name. The boolean is
// false when the subject is unknown; an error means the lookup itself
// failed (store unreachable).
type Directory interface {
	Lookup(ctx context.Context, username string) (label.Principal, bool, error)
}

// Default is the context assigned to unknown subjects: the lowest category
// and no dissemination rights. Matches the original deployment's fallback;
// callers are expected to log loudly when it is used.
func Default() label.Principal {
	return label.Principal{
		Name: "default_for_testing",
		Cats: label.NewSet("usg_unclassified"),
		Diss: label.NewSet(),
	}
}

// record is the stored shape of a permissions entry.
type record struct {
	Username string   `bson:"username"`
	Cats     []string `bson:"cat"`
	Diss     []string `bson:"diss"`
}

func (r record) principal() label.Principal {
	return label.Principal{
		Name: r.Username,
		Cats: label.NewSet(r.Cats...),
		Diss: label.NewSet(r.Diss...),
	}
}

// MongoDirectory reads permissions records from a collection. Records are
// small and lookups are per-request; no caching, so revocations take effect
// on the next request.
type MongoDirectory struct {
	coll *mongo.Collection
}

// NewMongoDirectory builds a directory over db's permissions collection.
func NewMongoDirectory(db *mongo.Database, collection string) *MongoDirectory {
	if collection == "" {
		collection = "permissions"
	}
	return &MongoDirectory{coll: db.Collection(collection)}
}

func (d *MongoDirectory) Lookup(ctx context.Context, username string) (label.Principal, bool, error) {
	var rec record
	err := d.coll.FindOne(ctx, bson.M{"username": username}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return label.Principal{}, false, nil
	}
	if err != nil {
		return label.Principal{}, false, fmt.Errorf("look up permissions for %q: %w", username, err)
	}
	return rec.principal(), true, nil
}

// StaticDirectory serves a fixed permission table from memory.
type StaticDirectory struct {
	users map[string]label.Principal
}

// NewStaticDirectory builds a directory from the given principals, keyed by
// name.
func NewStaticDirectory(users ...label.Principal) *StaticDirectory {
	m := make(map[string]label.Principal, len(users))
	for _, u := range users {
		m[u.Name] = u
	}
	return &StaticDirectory{users: m}
}

func (d *StaticDirectory) Lookup(_ context.Context, username string) (label.Principal, bool, error) {
	p, ok := d.users[username]
	return p, ok, nil
}
