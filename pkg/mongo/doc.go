// Package mongo connects to MongoDB and stores cache entries in a collection.
//
// New builds a client with pool settings from Config and retries the initial
// ping. Storage implements the cache backend contract: one document per key with
// the value as binary data and an optional expires_at date covered by a TTL
// index. Conditional writes rely on the unique _id index.
//
//	client, err := mongo.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	store := mongo.NewStorage(client.Database(cfg.Database).Collection(cfg.Collection))
//	if err := store.EnsureIndexes(ctx); err != nil {
//	    return err
//	}
package mongo
