package dynamo

import "errors"

var (
	ErrTableRequired = errors.New("dynamo: table name is required")
	ErrLoadAWSConfig = errors.New("dynamo: failed to load aws config")
	ErrCreateTable   = errors.New("dynamo: failed to create table")
	ErrUnprocessed   = errors.New("dynamo: batch request left unprocessed items")
	ErrHealthcheck   = errors.New("dynamo: healthcheck failed")
)
