package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/taskengine/pkg/cache"
)

type entry struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
}

// Storage is a cache backend on a MongoDB collection. Entries carry an optional
// expires_at date served by a TTL index; reads filter expired documents because
// the TTL monitor runs only once a minute.
type Storage struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewStorage wraps a collection. Call EnsureIndexes once before use.
func NewStorage(coll *mongo.Collection) *Storage {
	return &Storage{coll: coll, now: time.Now}
}

// EnsureIndexes creates the TTL index on expires_at.
func (s *Storage) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return errors.Join(ErrFailedToCreateIndex, err)
	}
	return nil
}

func (s *Storage) Name() string { return "mongo" }

// live matches documents without expiry or with expiry in the future.
func (s *Storage) live(filter bson.M) bson.M {
	filter["$or"] = bson.A{
		bson.M{"expires_at": nil},
		bson.M{"expires_at": bson.M{"$gt": s.now()}},
	}
	return filter
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var e entry
	err := s.coll.FindOne(ctx, s.live(bson.M{"_id": key})).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e.Value, true, nil
}

func (s *Storage) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	cur, err := s.coll.Find(ctx, s.live(bson.M{"_id": bson.M{"$in": keys}}))
	if err != nil {
		return nil, err
	}
	var entries []entry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out, nil
}

func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": key},
		entry{Key: key, Value: value, ExpiresAt: s.expiresAt(ttl)},
		options.Replace().SetUpsert(true),
	)
	return err
}

// SetNX upserts only over an expired document. A live document makes the
// upsert collide on _id, which reports false.
func (s *Storage) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	set := bson.M{"value": value}
	update := bson.M{"$set": set}
	if exp := s.expiresAt(ttl); exp != nil {
		set["expires_at"] = *exp
	} else {
		update["$unset"] = bson.M{"expires_at": ""}
	}

	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": key, "expires_at": bson.M{"$lte": s.now()}},
		update,
		options.UpdateOne().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (s *Storage) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	now := s.now()
	var e entry
	err := s.coll.FindOne(ctx, s.live(bson.M{"_id": key}),
		options.FindOne().SetProjection(bson.M{"expires_at": 1})).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if e.ExpiresAt == nil {
		return 0, true, nil
	}
	return e.ExpiresAt.Sub(now), true, nil
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, s.live(bson.M{"_id": key}), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Keys scans _id by an anchored prefix regex and applies the glob in Go.
func (s *Storage) Keys(ctx context.Context, pattern string) ([]string, error) {
	filter := bson.M{}
	if prefix := cache.PatternPrefix(pattern); prefix != "" {
		filter["_id"] = bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}
	}

	cur, err := s.coll.Find(ctx, s.live(filter), options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var keys []string
	for cur.Next(ctx) {
		var doc struct {
			Key string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		if cache.MatchPattern(pattern, doc.Key) {
			keys = append(keys, doc.Key)
		}
	}
	return keys, cur.Err()
}

func (s *Storage) Flush(ctx context.Context) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{})
	return err
}

func (s *Storage) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": s.now()}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

// Close disconnects the client owning the collection.
func (s *Storage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.coll.Database().Client().Disconnect(ctx)
}

func (s *Storage) expiresAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := s.now().Add(ttl).UTC()
	return &t
}
