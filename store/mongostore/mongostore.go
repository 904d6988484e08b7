// Package mongostore is an optional BaselineStore backend for multi-instance
// deployments where a shared filesystem isn't available, grounded on
// features/run/mongo/clients/mongo/client.go's thin interface wrapping the
// Mongo driver's collection handle.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/trajectly/trt/store"
)

const (
	defaultCollection = "trt_baselines"
	defaultOpTimeout  = 5 * time.Second
)

// ErrBaselineMissing is returned (wrapped) when no baseline document exists
// for a spec name.
var ErrBaselineMissing = errors.New("baseline missing")

// Options configures the Mongo-backed BaselineStore.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements store.BaselineStore backed by a Mongo collection, one
// document per spec name.
type Store struct {
	coll    collection
	timeout time.Duration
}

// New returns a store.BaselineStore backed by MongoDB, ensuring a unique
// index on spec_name.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	mcoll := opts.Client.Database(opts.Database).Collection(collName)
	wrapper := mongoCollection{coll: mcoll}
	return newStoreWithCollection(ctx, wrapper, timeout)
}

func newStoreWithCollection(ctx context.Context, coll collection, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ensureIndexes(ictx, coll); err != nil {
		return nil, err
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Resolve implements store.BaselineStore.
func (s *Store) Resolve(ctx context.Context, specName string) (store.Baseline, error) {
	if specName == "" {
		return store.Baseline{}, errors.New("mongostore: spec name is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc baselineDocument
	if err := s.coll.FindOne(ctx, bson.M{"spec_name": specName}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return store.Baseline{}, fmt.Errorf("%w: spec %q", ErrBaselineMissing, specName)
		}
		return store.Baseline{}, err
	}
	return store.UnmarshalBaseline(doc.Document)
}

// Write implements store.BaselineStore, upserting by spec name.
func (s *Store) Write(ctx context.Context, b store.Baseline) error {
	if b.SpecName == "" {
		return errors.New("mongostore: spec name is required")
	}
	data, err := store.MarshalBaseline(b)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"spec_name": b.SpecName}
	update := bson.M{"$set": bson.M{
		"spec_name":  b.SpecName,
		"document":   data,
		"updated_at": time.Now().UTC(),
	}}
	_, err = s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// List implements store.BaselineStore.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var names []string
	for cur.Next(ctx) {
		var doc baselineDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		names = append(names, doc.SpecName)
	}
	return names, cur.Err()
}

type baselineDocument struct {
	SpecName string `bson:"spec_name"`
	Document []byte `bson:"document"`
}

func ensureIndexes(ctx context.Context, coll collection) error {
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "spec_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

// collection narrows the driver's *mongo.Collection to the operations this
// store needs, so tests can substitute an in-memory fake.
type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return c.coll.FindOne(ctx, filter, opts...)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	return c.coll.Find(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return c.coll.Indexes()
}
