// Package webui serves a built dashboard bundle from disk.
//
// Unknown paths fall back to index.html so client-side routes survive a
// reload. index.html and other unhashed files are sent with no-cache; the
// bundler's hashed chunks can be cached normally.
package webui
