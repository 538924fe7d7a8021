// Package logging provides structured logging for OmniHome Core.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text for local development, with service and version
// attached to each entry.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Never log secrets. Tuya access secrets, Gemini keys and Firestore
// credentials are logged by prefix only, if at all.
package logging
