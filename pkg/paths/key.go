package paths

import (
	"crypto/sha256"
	"encoding/hex"
)

// ExistenceKey is the cache key whose presence attests that
// (id, fileName) is materialized in the blob store:
// SHA256(id || fileName), lower-case hex.
func ExistenceKey(id, fileName string) string {
	sum := sha256.Sum256([]byte(id + fileName))
	return hex.EncodeToString(sum[:])
}
