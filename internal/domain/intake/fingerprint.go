package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint hashes the answers into a cache key. encoding/json writes map keys in
// sorted order at every nesting level, so the key is independent of submission order.
func Fingerprint(a Answers) string {
	if a == nil {
		a = Answers{}
	}
	b, err := json.Marshal(a)
	if err != nil {
		// unmarshalable values (channels, funcs) never come from a JSON body
		b = []byte(fmt.Sprintf("%v", map[string]any(a)))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
