package tuya

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// SignMethod is sent in the sign_method header.
const SignMethod = "HMAC-SHA256"

// StringToSign builds the request digest input:
// METHOD \n sha256(body) \n headers \n path?sorted-query.
func StringToSign(method string, body []byte, signedHeaders string, path string, query url.Values) string {
	sum := sha256.Sum256(body)
	return strings.ToUpper(method) + "\n" +
		hex.EncodeToString(sum[:]) + "\n" +
		signedHeaders + "\n" +
		CanonicalURL(path, query)
}

// CanonicalURL returns path followed by the query sorted by key, unescaped.
func CanonicalURL(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range query[k] {
			parts = append(parts, k+"="+v)
		}
	}
	return path + "?" + strings.Join(parts, "&")
}

// Sign returns the upper-case hex HMAC-SHA256 of
// clientID + accessToken + t + nonce + stringToSign, keyed by secret.
// accessToken is empty for the token request itself.
func Sign(clientID, secret, accessToken, t, nonce, stringToSign string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(clientID + accessToken + t + nonce + stringToSign))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
