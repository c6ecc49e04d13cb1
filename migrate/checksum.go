package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Checksum computes the content hash of a forward SQL body. Line endings
// are normalized first so checkouts on different platforms agree.
func Checksum(sql string) string {
	normalized := strings.ReplaceAll(sql, "\r\n", "\n")
	hash := sha256.Sum256([]byte(normalized))
	return "sha256:" + hex.EncodeToString(hash[:])
}
