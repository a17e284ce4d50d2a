// Package pebblestore embeds a Pebble LSM database as a durable cache backend
// for single-node deployments.
//
// Open wraps pebble.Open with a configurable WAL fsync policy. Storage keeps
// each value behind an 8-byte expiry header, hides expired entries on reads
// and deletes them in PurgeExpired. Conditional writes are serialized inside
// the process, so a data directory must not be shared between processes.
package pebblestore
