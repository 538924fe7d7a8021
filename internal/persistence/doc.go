// Package persistence stores the device list locally and mirrors it to a
// remote document store when one is configured.
//
// The Adapter is local-first. Every write lands in SQLite and raises a
// local-update event before the remote store is touched, so the dashboard
// keeps working when the remote store is missing, misconfigured or
// unreachable. Mode selection happens at startup and again whenever the
// remote configuration changes (UpdateConfig, ResetConfig, Reconfigure).
//
// The Syncer owns the subscription that feeds device.Store.
package persistence
