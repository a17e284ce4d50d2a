package storage

import (
	"github.com/dmitrymomot/taskengine/pkg/dynamo"
	"github.com/dmitrymomot/taskengine/pkg/mongo"
	"github.com/dmitrymomot/taskengine/pkg/pebblestore"
	"github.com/dmitrymomot/taskengine/pkg/pg"
	"github.com/dmitrymomot/taskengine/pkg/redis"
)

// Kind names a concrete backend implementation.
type Kind string

const (
	KindNone     Kind = "none"
	KindMemory   Kind = "memory"
	KindRedis    Kind = "redis"
	KindPostgres Kind = "postgres"
	KindPebble   Kind = "pebble"
	KindMongo    Kind = "mongo"
	KindDynamo   Kind = "dynamo"
)

var (
	primaryKinds   = []Kind{KindNone, KindMemory, KindRedis, KindMongo, KindDynamo}
	secondaryKinds = []Kind{KindMemory, KindPostgres, KindPebble, KindMongo, KindDynamo, KindRedis}
)

// Config selects the backends of the tiered cache and carries their settings.
type Config struct {
	Primary        Kind `env:"CACHE_PRIMARY" envDefault:"redis"`
	Secondary      Kind `env:"CACHE_SECONDARY" envDefault:"pebble"`
	MemoryCapacity int  `env:"CACHE_MEMORY_CAPACITY" envDefault:"10000"`

	Redis    redis.Config
	Postgres pg.Config
	Mongo    mongo.Config
	Pebble   pebblestore.Config
	Dynamo   dynamo.Config
}
