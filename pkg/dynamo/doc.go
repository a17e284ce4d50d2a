// Package dynamo stores cache entries in an Amazon DynamoDB table.
//
// New loads the default AWS configuration and optionally points the client at a
// custom endpoint such as DynamoDB Local. EnsureTable creates an on-demand table
// keyed by "key" and enables TTL on expires_at. Storage implements the cache
// backend contract with conditional PutItem for SetNX and paginated scans for
// key enumeration.
package dynamo
