// Package store persists boxlink data in SQLite.
//
// SQLiteCache implements boxsync.CacheStore: the services last reconciled
// from the box together with locally defined tags. It is the source of truth
// for every consumer read.
//
// SettingsStore implements boxsync.Settings: a key/value table with change
// watchers, used for the origin, session token, API version and polling
// flags.
//
// Both expect the schema from the migrations package to be applied.
package store
