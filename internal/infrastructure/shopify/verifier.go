package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// AuthVerifier validates the hmac parameter Shopify appends to OAuth
// callback requests.
type AuthVerifier struct {
	secret []byte
}

// NewAuthVerifier creates a verifier bound to the app's shared API secret.
func NewAuthVerifier(secret string) *AuthVerifier {
	return &AuthVerifier{secret: []byte(secret)}
}

// Verify recomputes the HMAC-SHA256 of the canonical query message and
// compares it to the provided hmac parameter in constant time.
//
// The canonical message excludes the hmac and signature keys, sorts the
// remaining keys lexicographically, and joins them as key=value pairs with
// "&". Repeated keys have their values joined with ",".
func (v *AuthVerifier) Verify(query url.Values) bool {
	provided := query.Get("hmac")
	if provided == "" {
		return false
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+strings.Join(query[k], ","))
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(pairs, "&")))
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(provided))
}
