package dynamo

import "time"

type Config struct {
	Table       string        `env:"DYNAMO_TABLE" envDefault:"taskengine_cache"`
	Region      string        `env:"AWS_REGION" envDefault:"us-east-1"`
	Endpoint    string        `env:"DYNAMO_ENDPOINT"`                        // Overrides the endpoint, e.g. for DynamoDB Local
	CreateTable bool          `env:"DYNAMO_CREATE_TABLE" envDefault:"false"` // Create the table and enable TTL on startup
	WaitTimeout time.Duration `env:"DYNAMO_WAIT_TIMEOUT" envDefault:"2m"`    // Bound for waiting on table creation
}
