package lastfm

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
)

// Sign generates the API signature for a parameter set.
//
// The signature is calculated by:
// 1. Sorting parameter keys in byte order
// 2. Concatenating key+value pairs with raw, unescaped values
// 3. Appending the shared API secret
// 4. Taking the lowercase hex MD5 of the result
//
// The signature must be computed before the "format" parameter or the
// "api_sig" parameter itself are added to the request; the transport
// never includes either in the params it signs.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sigPlain string
	for _, k := range keys {
		sigPlain += k + params[k]
	}
	sigPlain += secret

	hasher := md5.New()
	hasher.Write([]byte(sigPlain))
	return hex.EncodeToString(hasher.Sum(nil))
}
