package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{client: client, db: client.Database(database)}, nil
}

// EnsureIndexes creates the lookup index on id for every collection and a
// unique index for every field in uniqueFields.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for _, name := range []string{Users, Products, CartItems, Orders} {
		_, err := s.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "id", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("create id index on %s: %w", name, err)
		}
	}

	for name, fields := range uniqueFields {
		for _, field := range fields {
			_, err := s.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
				Keys:    bson.D{{Key: field, Value: 1}},
				Options: options.Index().SetUnique(true),
			})
			if err != nil {
				return fmt.Errorf("create unique %s index on %s: %w", field, name, err)
			}
		}
	}

	_, err := s.db.Collection(CartItems).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "product_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create cart index: %w", err)
	}
	return nil
}

func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{coll: s.db.Collection(name)}
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoCollection struct {
	coll *mongo.Collection
}

func toM(filter Filter) bson.M {
	m := bson.M{}
	for k, v := range filter {
		m[k] = v
	}
	return m
}

func (c *mongoCollection) FindOne(ctx context.Context, filter Filter, out any) error {
	raw, err := c.coll.FindOne(ctx, toM(filter)).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	}
	return decodeStrict(raw, out)
}

func (c *mongoCollection) FindMany(ctx context.Context, filter Filter, out any) error {
	cur, err := c.coll.Find(ctx, toM(filter))
	if err != nil {
		return err
	}
	defer func() { _ = cur.Close(ctx) }()

	var raws []bson.Raw
	for cur.Next(ctx) {
		raws = append(raws, append(bson.Raw(nil), cur.Current...))
	}
	if err := cur.Err(); err != nil {
		return err
	}

	return decodeAll(raws, out)
}

func mongoDuplicateErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc any) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return mongoDuplicateErr(err)
}

func (c *mongoCollection) InsertMany(ctx context.Context, docs []any) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := c.coll.InsertMany(ctx, docs)
	return mongoDuplicateErr(err)
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter Filter, set map[string]any) (bool, error) {
	res, err := c.coll.UpdateOne(ctx, toM(filter), bson.M{"$set": set})
	if err != nil {
		return false, mongoDuplicateErr(err)
	}
	return res.MatchedCount > 0, nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter Filter) (bool, error) {
	res, err := c.coll.DeleteOne(ctx, toM(filter))
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, toM(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	return c.coll.CountDocuments(ctx, toM(filter))
}
