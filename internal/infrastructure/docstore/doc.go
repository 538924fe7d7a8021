// Package docstore is the remote document database behind OmniHome's
// shared device list, backed by Cloud Firestore.
//
// Devices live in the "devices" collection, one document per device id,
// using the camelCase field names of the original web dashboard so both
// can share a project. Provider credentials live in
// "settings/integration_<provider>".
//
// Errors from the service are mapped to ErrPermissionDenied,
// ErrUnavailable and ErrNotFound so callers can fall back to local storage
// without importing gRPC.
package docstore
