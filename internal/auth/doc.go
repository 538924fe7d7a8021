// Package auth provides the dashboard's account, password and token
// handling.
//
// Passwords are hashed with Argon2id. Successful logins receive an HS256
// access token; the browser exchanges it for a short-lived ticket to open
// the event and voice WebSockets. A single admin account is seeded on
// first start from security.admin in the configuration.
package auth
