// Package store defines the aggregate store contract the governance
// engine persists through, with in-memory and SQLite implementations.
//
// The store is an addressable key-value surface: aggregate buckets are
// rows keyed by (scope, period, time-bucket label) whose numeric fields
// only ever grow via atomic adds; events, thresholds, and alerts are
// document rows keyed by id. Event and alert rows carry a retention
// deadline after which Cleanup may purge them — the engine stamps the
// deadline but never purges on the write path.
//
// Correctness of concurrent ingestion depends on AddToBucket providing
// linearizable increment semantics per bucket key. The memory backend
// serializes adds behind a mutex; the SQLite backend relies on UPSERT
// arithmetic under SQLite's single-writer model.
package store
