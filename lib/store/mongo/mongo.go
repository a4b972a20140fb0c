// Package mongo implements the interface for MongoDB.
package mongo

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/stellarsvc/lib/store"
)

// Databases used by the service.
const (
	opsDB   = "ops"
	metaDB  = "meta"
	metaCol = "issuer"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c *mgo.Client
}

// MongoOp implements a store operation to MongoDB.
type MongoOp struct {
	ID     primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Type   string             `json:"type" bson:"type"`
	Asset  string             `json:"asset,omitempty" bson:"asset,omitempty"`
	Amount string             `json:"amount,omitempty" bson:"amount,omitempty"`
	To     string             `json:"to,omitempty" bson:"to,omitempty"`
	Hash   string             `json:"hash,omitempty" bson:"hash,omitempty"`
	Status string             `json:"status" bson:"status"`
	Error  string             `json:"error,omitempty" bson:"error,omitempty"`
	TS     int64              `json:"ts" bson:"ts"`
}

// Op converts a MongoOp to store.Op type.
func (o MongoOp) Op() store.Op {
	return store.Op{
		ID:     o.ID[:],
		Type:   o.Type,
		Asset:  o.Asset,
		Amount: o.Amount,
		To:     o.To,
		Hash:   o.Hash,
		Status: o.Status,
		Error:  o.Error,
		TS:     o.TS,
	}
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	err = c.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{c: c}, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

// AddOp saves an operation of account acc and returns its id.
func (m *Mongo) AddOp(o store.Op, acc string) ([]byte, error) {
	col := m.c.Database(opsDB).Collection(acc)

	res, err := col.InsertOne(context.Background(), MongoOp{
		Type:   o.Type,
		Asset:  o.Asset,
		Amount: o.Amount,
		To:     o.To,
		Hash:   o.Hash,
		Status: o.Status,
		Error:  o.Error,
		TS:     o.TS,
	})
	if err != nil {
		return nil, fmt.Errorf("could not insert operation in db: %w", err)
	}

	return hex.DecodeString(res.InsertedID.(primitive.ObjectID).Hex())
}

// GetOps returns the operations of the accounts indicated in the acc slice, or of every account when empty.
func (m *Mongo) GetOps(acc []string) ([]store.AccountOps, error) {
	cols, err := m.c.Database(opsDB).ListCollectionNames(context.Background(), bson.D{})
	if err != nil {
		return nil, fmt.Errorf("error getting mongo DB object: %w", err)
	}

	ops := []store.AccountOps{}

	for _, col := range cols {
		if len(acc) != 0 && !slices.Contains(acc, col) {
			continue
		}

		ao := store.AccountOps{Account: col, Ops: []store.Op{}}
		// get the operations in insertion order
		docs, err := m.c.Database(opsDB).Collection(col).Find(context.TODO(), bson.M{},
			options.Find().SetSort(bson.D{{Key: "ts", Value: 1}}))
		if err == nil {
			for docs.Next(context.Background()) {
				var o MongoOp
				if err = bson.Unmarshal(docs.Current, &o); err == nil {
					ao.Ops = append(ao.Ops, o.Op())
				}
			}
			_ = docs.Close(context.Background())
		}

		ops = append(ops, ao)
	}

	return ops, nil
}

// LoadMeta loads from db the meta data of the indicated asset issuer.
func (m *Mongo) LoadMeta(issuer string) (im store.IssuerMeta, err error) {
	mongoSingleResult := m.c.Database(metaDB).Collection(metaCol).FindOne(context.TODO(), bson.M{"issuer": issuer})
	if err = mongoSingleResult.Decode(&im); errors.Is(err, mgo.ErrNoDocuments) {
		err = store.ErrDataNotFound
	}

	return
}

// SaveMeta saves to db the meta data of the indicated asset issuer.
func (m *Mongo) SaveMeta(issuer string, im store.IssuerMeta) (err error) {
	_, err = m.c.Database(metaDB).Collection(metaCol).UpdateOne(context.Background(),
		bson.M{"issuer": issuer}, // filter
		bson.D{ // update
			{
				Key: "$set", Value: bson.D{
					{Key: "data", Value: im.Data},
					{Key: "updated", Value: im.Updated},
				},
			},
		},
		options.Update().SetUpsert(true))

	return
}

// DeleteMeta deletes from db the meta data of the indicated asset issuer.
func (m *Mongo) DeleteMeta(issuer string) (err error) {
	_, err = m.c.Database(metaDB).Collection(metaCol).DeleteOne(context.Background(), bson.M{"issuer": issuer},
		options.Delete())

	return
}
