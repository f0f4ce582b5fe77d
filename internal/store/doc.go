// Package store provides durable storage for sheets: cell rows, dependency
// links between cells, the external value cache, and webhook subscriptions.
//
// Storage is SQLite with WAL mode. Every query method exists on Queries,
// which runs against either the base connection or an open transaction, so
// a cell write (upsert + link replacement + recalculated results) commits
// atomically through WithTx.
package store
