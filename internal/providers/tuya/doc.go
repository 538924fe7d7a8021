// Package tuya talks to the Tuya IoT cloud OpenAPI.
//
// Requests are signed with HMAC-SHA256 over the client id, access token,
// timestamp, nonce and a digest of the request. The Connector maps cloud
// devices onto device records by category and sends commands back for
// records it imported.
package tuya
