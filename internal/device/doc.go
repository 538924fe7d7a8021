// Package device holds OmniHome's device records and the live device store.
//
// A Device is a named, typed item in a room with an on/off flag and an
// optional number-or-text value. Three layers handle them:
//
//   - Store keeps the current list in memory. Writes are optimistic: the
//     list and its listeners change first, then a Mirror persists the
//     change in the background.
//   - SQLiteRepository is the local copy, used as the persistence
//     fallback when no remote store is configured or reachable.
//   - Validation and helpers (FindByName, ComputeStats, GroupByRoom)
//     shared by the API, voice assistant and scenes.
//
// Conflicts resolve last-write-wins: the next snapshot from persistence
// replaces the in-memory list.
package device
